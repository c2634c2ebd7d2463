// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package apploader

import "testing"

const sampleWPSDescribeProcess = `<?xml version="1.0" encoding="UTF-8"?>
<ProcessDescriptions>
  <ProcessDescription>
    <Identifier>buffer</Identifier>
    <Title>Buffer a geometry</Title>
    <Abstract>Buffers an input geometry by a distance.</Abstract>
    <DataInputs>
      <Input minOccurs="1" maxOccurs="1">
        <Identifier>distance</Identifier>
        <Title>Buffer distance</Title>
        <LiteralData>
          <DataType>xs:double</DataType>
        </LiteralData>
      </Input>
      <Input minOccurs="1" maxOccurs="5">
        <Identifier>geometry</Identifier>
        <Title>Input geometry</Title>
        <ComplexData>
          <Default>
            <Format><MimeType>application/gml+xml</MimeType></Format>
          </Default>
          <Supported>
            <Format><MimeType>application/gml+xml</MimeType></Format>
            <Format><MimeType>application/json</MimeType></Format>
          </Supported>
        </ComplexData>
      </Input>
      <Input minOccurs="0" maxOccurs="1">
        <Identifier>method</Identifier>
        <LiteralData>
          <DataType>string</DataType>
          <AllowedValues>
            <Value>round</Value>
            <Value>flat</Value>
          </AllowedValues>
        </LiteralData>
      </Input>
    </DataInputs>
    <ProcessOutputs>
      <Output>
        <Identifier>result</Identifier>
        <Title>Buffered geometry</Title>
        <ComplexData>
          <Default>
            <Format><MimeType>application/gml+xml</MimeType></Format>
          </Default>
        </ComplexData>
      </Output>
    </ProcessOutputs>
  </ProcessDescription>
</ProcessDescriptions>`

func TestRawPackageFromWPSXML(t *testing.T) {
	raw, err := rawPackageFromWPSXML([]byte(sampleWPSDescribeProcess))
	if err != nil {
		t.Fatalf("rawPackageFromWPSXML() error = %v", err)
	}
	if raw.ID != "buffer" || raw.Title != "Buffer a geometry" {
		t.Fatalf("rawPackageFromWPSXML() = %+v", raw)
	}

	distance := raw.Inputs["distance"]
	if distance.Type != "float" {
		t.Errorf("distance.Type = %q, want float", distance.Type)
	}

	geometry := raw.Inputs["geometry"]
	if geometry.Type != "file" {
		t.Errorf("geometry.Type = %q, want file", geometry.Type)
	}
	if len(geometry.Format) != 2 {
		t.Errorf("geometry.Format = %v, want 2 formats", geometry.Format)
	}
	if maxOccurs(geometry) != 5 {
		t.Errorf("geometry maxOccurs = %d, want 5", maxOccurs(geometry))
	}

	method := raw.Inputs["method"]
	if minOccurs(method) != 0 {
		t.Errorf("method minOccurs = %d, want 0", minOccurs(method))
	}
	if len(method.Symbols) != 2 {
		t.Errorf("method.Symbols = %v, want 2 symbols", method.Symbols)
	}

	result := raw.Outputs["result"]
	if result.Type != "file" {
		t.Errorf("result.Type = %q, want file", result.Type)
	}
}

func TestRawPackageFromWPSXMLRejectsMissingIdentifier(t *testing.T) {
	_, err := rawPackageFromWPSXML([]byte(`<ProcessDescriptions><ProcessDescription/></ProcessDescriptions>`))
	if err == nil {
		t.Fatal("rawPackageFromWPSXML() error = nil, want error for missing identifier")
	}
}
