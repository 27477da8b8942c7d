package gin

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

const swapRequestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["userAddress", "usdcAmount", "minEthAmount", "deadline", "permitSignature"],
  "properties": {
    "userAddress": {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"},
    "usdcAmount": {"type": "string", "pattern": "^[0-9]+$"},
    "minEthAmount": {"type": "string", "pattern": "^[0-9]+$"},
    "deadline": {"type": "integer", "minimum": 0},
    "permitSignature": {
      "type": "object",
      "required": ["v", "r", "s"],
      "properties": {
        "v": {"type": "integer", "minimum": 0, "maximum": 255},
        "r": {"type": "string", "pattern": "^0x[0-9a-fA-F]{64}$"},
        "s": {"type": "string", "pattern": "^0x[0-9a-fA-F]{64}$"},
        "deadline": {"type": "string", "pattern": "^[0-9]*$"},
        "nonce": {"type": "string", "pattern": "^[0-9]*$"}
      }
    },
    "order": {
      "type": "object",
      "required": ["sellToken", "buyToken", "sellAmount", "buyAmount", "validTo", "kind", "signature", "signingScheme"],
      "properties": {
        "sellToken": {"type": "string"},
        "buyToken": {"type": "string"},
        "sellAmount": {"type": "string"},
        "buyAmount": {"type": "string"},
        "validTo": {"type": "integer"},
        "kind": {"enum": ["sell", "buy"]},
        "signature": {"type": "string"},
        "signingScheme": {"type": "string"}
      }
    }
  }
}`

var swapSchema = mustSchema(swapRequestSchema)

func mustSchema(source string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
	if err != nil {
		panic(fmt.Sprintf("invalid schema: %v", err))
	}
	return schema
}

// schemaResult is the outcome of validating a request body
type schemaResult struct {
	Missing bool
	Errors  []string
}

func (r schemaResult) Valid() bool {
	return !r.Missing && len(r.Errors) == 0
}

// validateSwapRequest checks body against the gasless-swap schema.
func validateSwapRequest(body []byte) schemaResult {
	result, err := swapSchema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return schemaResult{Errors: []string{fmt.Sprintf("Schema validation failed: %v", err)}}
	}
	if result.Valid() {
		return schemaResult{}
	}

	var out schemaResult
	for _, desc := range result.Errors() {
		if desc.Type() == "required" {
			out.Missing = true
		}
		out.Errors = append(out.Errors, fmt.Sprintf("%s: %s", desc.Context().String(), desc.Description()))
	}
	return out
}
