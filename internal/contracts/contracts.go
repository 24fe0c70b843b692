// Package contracts checks stored documents against their embedded JSON schemas.
package contracts

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed offer.schema.json
var offerSchemaJSON []byte

const offerSchemaURL = "offer.schema.json"

var offerSchema = mustCompile(offerSchemaURL, offerSchemaJSON)

func mustCompile(url string, src []byte) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	if err := compiler.AddResource(url, bytes.NewReader(src)); err != nil {
		panic(fmt.Sprintf("adding schema resource %s: %v", url, err))
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("compiling schema %s: %v", url, err))
	}
	return schema
}

// ValidateOffer checks an encoded offer document before it is persisted.
func ValidateOffer(doc []byte) error {
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return fmt.Errorf("offer document is not valid JSON: %w", err)
	}
	if err := offerSchema.Validate(v); err != nil {
		return fmt.Errorf("offer document violates schema: %w", err)
	}
	return nil
}
