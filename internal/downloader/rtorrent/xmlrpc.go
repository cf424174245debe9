package rtorrent

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// encodeCall renders an XML-RPC methodCall. Supported parameter types are
// string, int, int64, bool and slices of those.
func encodeCall(method string, params ...any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0"?><methodCall><methodName>`)
	if err := xml.EscapeText(&buf, []byte(method)); err != nil {
		return nil, err
	}
	buf.WriteString(`</methodName><params>`)
	for _, p := range params {
		buf.WriteString(`<param>`)
		if err := encodeValue(&buf, p); err != nil {
			return nil, err
		}
		buf.WriteString(`</param>`)
	}
	buf.WriteString(`</params></methodCall>`)
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v any) error {
	buf.WriteString(`<value>`)
	switch val := v.(type) {
	case string:
		buf.WriteString(`<string>`)
		if err := xml.EscapeText(buf, []byte(val)); err != nil {
			return err
		}
		buf.WriteString(`</string>`)
	case int:
		fmt.Fprintf(buf, `<i4>%d</i4>`, val)
	case int64:
		fmt.Fprintf(buf, `<i8>%d</i8>`, val)
	case bool:
		b := 0
		if val {
			b = 1
		}
		fmt.Fprintf(buf, `<boolean>%d</boolean>`, b)
	case []string:
		buf.WriteString(`<array><data>`)
		for _, s := range val {
			if err := encodeValue(buf, s); err != nil {
				return err
			}
		}
		buf.WriteString(`</data></array>`)
	case []any:
		buf.WriteString(`<array><data>`)
		for _, item := range val {
			if err := encodeValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteString(`</data></array>`)
	default:
		return fmt.Errorf("unsupported XML-RPC parameter type %T", v)
	}
	buf.WriteString(`</value>`)
	return nil
}

type methodResponse struct {
	Params []struct {
		Value rawValue `xml:"value"`
	} `xml:"params>param"`
	Fault *struct {
		Value rawValue `xml:"value"`
	} `xml:"fault"`
}

type rawValue struct {
	Inner []byte `xml:",innerxml"`
}

// decodeResponse returns the first response parameter as string, int64,
// bool, []any or map[string]any. A fault becomes an error.
func decodeResponse(data []byte) (any, error) {
	var resp methodResponse
	if err := xml.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse XML-RPC response: %w", err)
	}

	if resp.Fault != nil {
		val, err := parseValue(resp.Fault.Value.Inner)
		if err != nil {
			return nil, fmt.Errorf("XML-RPC fault: %s", string(resp.Fault.Value.Inner))
		}
		if m, ok := val.(map[string]any); ok {
			return nil, fmt.Errorf("XML-RPC fault: %v", m["faultString"])
		}
		return nil, fmt.Errorf("XML-RPC fault: %v", val)
	}

	if len(resp.Params) == 0 {
		return "", nil
	}
	return parseValue(resp.Params[0].Value.Inner)
}

func parseValue(inner []byte) (any, error) {
	wrapped := make([]byte, 0, len(inner)+15)
	wrapped = append(wrapped, "<value>"...)
	wrapped = append(wrapped, inner...)
	wrapped = append(wrapped, "</value>"...)

	d := xml.NewDecoder(bytes.NewReader(wrapped))
	if _, err := d.Token(); err != nil {
		return nil, err
	}
	return readValue(d)
}

// readValue decodes the body of a <value> whose start tag was already
// consumed, through its closing tag. An untyped value is a bare string.
func readValue(d *xml.Decoder) (any, error) {
	var text strings.Builder
	var result any
	typed := false
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			v, err := readTyped(d, t.Name.Local)
			if err != nil {
				return nil, err
			}
			result, typed = v, true
		case xml.CharData:
			if !typed {
				text.Write(t)
			}
		case xml.EndElement:
			if t.Name.Local != "value" {
				continue
			}
			if typed {
				return result, nil
			}
			return text.String(), nil
		}
	}
}

func readTyped(d *xml.Decoder, typeName string) (any, error) {
	switch typeName {
	case "int", "i4", "i8":
		s, err := readText(d, typeName)
		n, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		return n, err
	case "boolean":
		s, err := readText(d, typeName)
		return strings.TrimSpace(s) == "1", err
	case "array":
		return readArray(d)
	case "struct":
		return readStruct(d)
	default:
		return readText(d, typeName)
	}
}

func readText(d *xml.Decoder, endTag string) (string, error) {
	var sb strings.Builder
	for {
		tok, err := d.Token()
		if err != nil {
			return sb.String(), err
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.EndElement:
			if t.Name.Local == endTag {
				return sb.String(), nil
			}
		}
	}
}

func readArray(d *xml.Decoder) ([]any, error) {
	items := []any{}
	for {
		tok, err := d.Token()
		if err != nil {
			return items, err
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if t.Name.Local == "array" {
				return items, nil
			}
		case xml.StartElement:
			if t.Name.Local != "value" {
				continue
			}
			v, err := readValue(d)
			if err != nil {
				return items, err
			}
			items = append(items, v)
		}
	}
}

func readStruct(d *xml.Decoder) (map[string]any, error) {
	result := make(map[string]any)
	var name string
	for {
		tok, err := d.Token()
		if err != nil {
			return result, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "name":
				name, _ = readText(d, "name")
			case "value":
				v, err := readValue(d)
				if err != nil {
					return result, err
				}
				result[name] = v
			}
		case xml.EndElement:
			if t.Name.Local == "struct" {
				return result, nil
			}
		}
	}
}

func asString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	}
	return ""
}

func asInt64(v any) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		return n
	case bool:
		if val {
			return 1
		}
	}
	return 0
}
