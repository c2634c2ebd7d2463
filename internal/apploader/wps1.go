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

import (
	"encoding/xml"
	"fmt"

	"github.com/crim-ca/weaver/pkg/ogcerrors"
)

// wpsProcessDescriptions is the minimal WPS 1.0.0/2.0 DescribeProcess
// response shape needed to map a remote process's I/O onto a rawPackage.
// WPS XML documents never carry a principal requirement: when used as the
// primary document passed to Load, the resulting rawPackage always fails
// requirement resolution unless it is only ever consumed as a peer
// description (the common case, enriching an AP document's I/O metadata).
type wpsProcessDescriptions struct {
	XMLName     xml.Name            `xml:"ProcessDescriptions"`
	Description wpsProcessDescription `xml:"ProcessDescription"`
}

type wpsProcessDescription struct {
	Identifier string           `xml:"Identifier"`
	Title      string           `xml:"Title"`
	Abstract   string           `xml:"Abstract"`
	Inputs     []wpsInput       `xml:"DataInputs>Input"`
	Outputs    []wpsOutput      `xml:"ProcessOutputs>Output"`
}

type wpsInput struct {
	MinOccurs   string         `xml:"minOccurs,attr"`
	MaxOccurs   string         `xml:"maxOccurs,attr"`
	Identifier  string         `xml:"Identifier"`
	Title       string         `xml:"Title"`
	Abstract    string         `xml:"Abstract"`
	LiteralData *wpsLiteral    `xml:"LiteralData"`
	ComplexData *wpsComplex    `xml:"ComplexData"`
	BoundingBox *wpsBoundingBox `xml:"BoundingBoxData"`
}

type wpsOutput struct {
	Identifier  string         `xml:"Identifier"`
	Title       string         `xml:"Title"`
	Abstract    string         `xml:"Abstract"`
	LiteralData *wpsLiteral    `xml:"LiteralData"`
	ComplexData *wpsComplex    `xml:"ComplexData"`
	BoundingBox *wpsBoundingBox `xml:"BoundingBoxData"`
}

type wpsLiteral struct {
	DataType      string          `xml:"DataType"`
	AllowedValues []string        `xml:"AllowedValues>Value"`
}

type wpsComplex struct {
	Default   wpsFormat   `xml:"Default>Format"`
	Supported []wpsFormat `xml:"Supported>Format"`
}

type wpsFormat struct {
	MimeType string `xml:"MimeType"`
	Encoding string `xml:"Encoding"`
	Schema   string `xml:"Schema"`
}

type wpsBoundingBox struct {
	CRS []string `xml:"CRS"`
}

// rawPackageFromWPSXML maps a WPS 1.0.0/2.0 DescribeProcess document onto
// a rawPackage, following the table: LiteralData -> literal with the
// declared data type (AllowedValues -> enum symbols); ComplexData -> File
// with its supported formats; maxOccurs > 1 -> array cardinality;
// BoundingBoxData -> bbox.
func rawPackageFromWPSXML(body []byte) (*rawPackage, error) {
	var doc wpsProcessDescriptions
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, &ogcerrors.ValidationError{
			Message:    "malformed WPS DescribeProcess document",
			Suggestion: err.Error(),
		}
	}
	desc := doc.Description
	if desc.Identifier == "" {
		return nil, &ogcerrors.ValidationError{Message: "WPS DescribeProcess document declares no process identifier"}
	}

	raw := &rawPackage{
		ID:       desc.Identifier,
		Title:    desc.Title,
		Abstract: desc.Abstract,
		Inputs:   map[string]rawIO{},
		Outputs:  map[string]rawIO{},
	}
	for _, in := range desc.Inputs {
		raw.Inputs[in.Identifier] = wpsInputToRawIO(in)
	}
	for _, out := range desc.Outputs {
		raw.Outputs[out.Identifier] = wpsOutputToRawIO(out)
	}
	return raw, nil
}

func wpsInputToRawIO(in wpsInput) rawIO {
	io := wpsIOCommon(in.Title, in.Abstract, in.LiteralData, in.ComplexData, in.BoundingBox)
	min := wpsOccurs(in.MinOccurs, 1)
	io.MinOccurs = &min
	io.MaxOccurs = wpsMaxOccursValue(in.MaxOccurs)
	return io
}

func wpsOutputToRawIO(out wpsOutput) rawIO {
	return wpsIOCommon(out.Title, out.Abstract, out.LiteralData, out.ComplexData, out.BoundingBox)
}

func wpsIOCommon(title, abstract string, lit *wpsLiteral, cplx *wpsComplex, bbox *wpsBoundingBox) rawIO {
	io := rawIO{Title: title, Abstract: abstract}
	switch {
	case lit != nil:
		io.Type = wpsLiteralType(lit.DataType)
		io.Symbols = lit.AllowedValues
	case cplx != nil:
		io.Type = "file"
		io.Format = wpsComplexFormats(*cplx)
	case bbox != nil:
		io.Type = "bbox"
		if len(bbox.CRS) > 0 {
			io.Schema = map[string]any{"crs": bbox.CRS}
		}
	default:
		io.Type = "string"
	}
	return io
}

func wpsComplexFormats(c wpsComplex) []string {
	formats := make([]string, 0, len(c.Supported)+1)
	if c.Default.MimeType != "" {
		formats = append(formats, c.Default.MimeType)
	}
	for _, f := range c.Supported {
		if f.MimeType != "" && !containsString(formats, f.MimeType) {
			formats = append(formats, f.MimeType)
		}
	}
	return formats
}

func wpsLiteralType(dataType string) string {
	switch dataType {
	case "xs:integer", "integer", "int":
		return "integer"
	case "xs:double", "xs:float", "double", "float":
		return "float"
	case "xs:boolean", "boolean", "bool":
		return "boolean"
	default:
		return "string"
	}
}

func wpsOccurs(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
		return fallback
	}
	return n
}

func wpsMaxOccursValue(value string) any {
	if value == "" || value == "1" {
		return 1
	}
	if value == "unbounded" {
		return "unbounded"
	}
	return wpsOccurs(value, 1)
}
