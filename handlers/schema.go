package handlers

import (
	"bytes"

	"github.com/xeipuuv/gojsonschema"
)

const schemaCreateIntent = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["amount", "currency"],
  "properties": {
    "amount": { "type": ["number", "string"] },
    "currency": { "type": "string", "minLength": 3, "maxLength": 3 },
    "description": { "type": "string", "maxLength": 500 },
    "customerReference": { "type": "string", "maxLength": 255 }
  },
  "additionalProperties": false
}`

const schemaConfirmIntent = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["paymentMethodType", "paymentMethodToken"],
  "properties": {
    "paymentMethodType": { "type": "string", "minLength": 1, "maxLength": 32 },
    "paymentMethodToken": { "type": "string", "minLength": 1, "maxLength": 255 }
  },
  "additionalProperties": false
}`

const schemaProviderWebhook = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["providerPaymentId", "status"],
  "properties": {
    "providerPaymentId": { "type": "string", "minLength": 1 },
    "status": { "type": "string" },
    "failureCode": { "type": "string" },
    "failureMessage": { "type": "string" }
  },
  "additionalProperties": false
}`

var (
	createIntentLoader    = gojsonschema.NewStringLoader(schemaCreateIntent)
	confirmIntentLoader   = gojsonschema.NewStringLoader(schemaConfirmIntent)
	providerWebhookLoader = gojsonschema.NewStringLoader(schemaProviderWebhook)
)

// validateBody checks body against schema. Failures are validationErrors
// listing every offending field.
func validateBody(schema gojsonschema.JSONLoader, body []byte) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return invalid("request body is required")
	}
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return invalid("malformed JSON body")
	}
	if result.Valid() {
		return nil
	}
	fields := make([]fieldError, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		field := e.Field()
		if field == "(root)" {
			if p, ok := e.Details()["property"].(string); ok {
				field = p
			}
		}
		fields = append(fields, fieldError{Field: field, Message: e.Description()})
	}
	return invalid("Validation failed", fields...)
}
