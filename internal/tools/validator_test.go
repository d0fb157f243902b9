package tools_test

import (
	"context"
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"hivemind.app/conduit/internal/tools"
)

func mustSchema(raw string) *tools.Schema {
	schema, err := tools.ParseSchema(json.RawMessage(raw))
	Expect(err).NotTo(HaveOccurred())
	return schema
}

var _ = Describe("ValidateArguments", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Context("with well-formed arguments", func() {
		It("passes valid arguments through unchanged", func() {
			schema := mustSchema(`{
				"type": "object",
				"properties": {
					"ip": {"type": "string"},
					"limit": {"type": "integer"}
				},
				"required": ["ip"]
			}`)

			args, err := tools.ValidateArguments(ctx, "lookup_ip", `{"ip":"1.2.3.4","limit":10}`, schema)

			Expect(err).NotTo(HaveOccurred())
			Expect(args).To(HaveKeyWithValue("ip", "1.2.3.4"))
			Expect(args["limit"]).To(Equal(int64(10)))
		})

		It("is idempotent: validating the output again changes nothing", func() {
			schema := mustSchema(`{
				"type": "object",
				"properties": {"count": {"type": "integer"}},
				"required": ["count"]
			}`)

			first, err := tools.ValidateArguments(ctx, "t", `{"count":"5"}`, schema)
			Expect(err).NotTo(HaveOccurred())
			Expect(first["count"]).To(Equal(int64(5)))

			roundTripped, _ := json.Marshal(first)
			second, err := tools.ValidateArguments(ctx, "t", string(roundTripped), schema)
			Expect(err).NotTo(HaveOccurred())
			Expect(second["count"]).To(Equal(int64(5)))
		})

		It("treats empty arguments as an empty object", func() {
			args, err := tools.ValidateArguments(ctx, "list_cases", "", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(args).To(BeEmpty())
		})
	})

	Context("with malformed JSON", func() {
		It("fails with ErrMalformedArguments", func() {
			_, err := tools.ValidateArguments(ctx, "lookup_ip", `{"ip": `, nil)
			Expect(err).To(MatchError(tools.ErrMalformedArguments))
		})
	})

	Context("with missing required fields", func() {
		It("fails and names the field", func() {
			schema := mustSchema(`{
				"type": "object",
				"properties": {"ip": {"type": "string"}},
				"required": ["ip"]
			}`)

			_, err := tools.ValidateArguments(ctx, "lookup_ip", `{}`, schema)

			Expect(err).To(MatchError(tools.ErrMissingRequiredField))
			var vErr *tools.ValidationError
			Expect(errors.As(err, &vErr)).To(BeTrue())
			Expect(vErr.Field).To(Equal("ip"))
		})

		It("treats an explicit null as missing", func() {
			schema := mustSchema(`{
				"type": "object",
				"properties": {"ip": {"type": "string"}},
				"required": ["ip"]
			}`)

			_, err := tools.ValidateArguments(ctx, "lookup_ip", `{"ip":null}`, schema)
			Expect(err).To(MatchError(tools.ErrMissingRequiredField))
		})
	})

	Context("coercions", func() {
		It("parses stringified numbers and booleans", func() {
			schema := mustSchema(`{
				"type": "object",
				"properties": {
					"score": {"type": "number"},
					"limit": {"type": "integer"},
					"deep": {"type": "boolean"}
				}
			}`)

			args, err := tools.ValidateArguments(ctx, "t", `{"score":"0.75","limit":"10","deep":"true"}`, schema)

			Expect(err).NotTo(HaveOccurred())
			Expect(args["score"]).To(Equal(0.75))
			Expect(args["limit"]).To(Equal(int64(10)))
			Expect(args["deep"]).To(Equal(true))
		})

		It("formats numbers and booleans where a string is declared", func() {
			schema := mustSchema(`{
				"type": "object",
				"properties": {
					"ip": {"type": "string"},
					"note": {"type": "string"}
				},
				"required": ["ip"]
			}`)

			args, err := tools.ValidateArguments(ctx, "lookup_ip", `{"ip":42,"note":true}`, schema)

			Expect(err).NotTo(HaveOccurred())
			Expect(args["ip"]).To(Equal("42"))
			Expect(args["note"]).To(Equal("true"))
		})

		It("formats a fractional number without losing precision", func() {
			schema := mustSchema(`{
				"type": "object",
				"properties": {"score": {"type": "string"}}
			}`)

			args, err := tools.ValidateArguments(ctx, "t", `{"score":0.75}`, schema)

			Expect(err).NotTo(HaveOccurred())
			Expect(args["score"]).To(Equal("0.75"))
		})

		It("wraps a scalar where an array is declared", func() {
			schema := mustSchema(`{
				"type": "object",
				"properties": {"tags": {"type": "array", "items": {"type": "string"}}}
			}`)

			args, err := tools.ValidateArguments(ctx, "t", `{"tags":"malware"}`, schema)

			Expect(err).NotTo(HaveOccurred())
			Expect(args["tags"]).To(Equal([]any{"malware"}))
		})

		It("parses a JSON-encoded array string", func() {
			schema := mustSchema(`{
				"type": "object",
				"properties": {"tags": {"type": "array", "items": {"type": "string"}}}
			}`)

			args, err := tools.ValidateArguments(ctx, "t", `{"tags":"[\"a\",\"b\"]"}`, schema)

			Expect(err).NotTo(HaveOccurred())
			Expect(args["tags"]).To(Equal([]any{"a", "b"}))
		})

		It("fails a required field that cannot be coerced", func() {
			schema := mustSchema(`{
				"type": "object",
				"properties": {"limit": {"type": "integer"}},
				"required": ["limit"]
			}`)

			_, err := tools.ValidateArguments(ctx, "t", `{"limit":"ten"}`, schema)
			Expect(err).To(MatchError(tools.ErrCoercionFailed))
		})

		It("keeps an optional field that cannot be coerced", func() {
			schema := mustSchema(`{
				"type": "object",
				"properties": {"limit": {"type": "integer"}}
			}`)

			args, err := tools.ValidateArguments(ctx, "t", `{"limit":"ten"}`, schema)
			Expect(err).NotTo(HaveOccurred())
			Expect(args["limit"]).To(Equal("ten"))
		})
	})

	Context("enums", func() {
		schemaJSON := `{
			"type": "object",
			"properties": {"severity": {"type": "string", "enum": ["low", "medium", "high"]}},
			"required": ["severity"]
		}`

		It("accepts a declared member", func() {
			args, err := tools.ValidateArguments(ctx, "t", `{"severity":"high"}`, mustSchema(schemaJSON))
			Expect(err).NotTo(HaveOccurred())
			Expect(args["severity"]).To(Equal("high"))
		})

		It("rejects values outside the enum", func() {
			_, err := tools.ValidateArguments(ctx, "t", `{"severity":"critical"}`, mustSchema(schemaJSON))
			Expect(err).To(MatchError(tools.ErrInvalidEnumValue))
		})

		It("compares numeric members loosely across representations", func() {
			schema := mustSchema(`{
				"type": "object",
				"properties": {"level": {"type": "integer", "enum": [1, 2, 3]}}
			}`)

			args, err := tools.ValidateArguments(ctx, "t", `{"level":"2"}`, schema)
			Expect(err).NotTo(HaveOccurred())
			Expect(args["level"]).To(Equal(int64(2)))
		})
	})

	Context("unknown fields", func() {
		It("passes them through", func() {
			schema := mustSchema(`{
				"type": "object",
				"properties": {"ip": {"type": "string"}}
			}`)

			args, err := tools.ValidateArguments(ctx, "t", `{"ip":"1.2.3.4","verbose":true}`, schema)
			Expect(err).NotTo(HaveOccurred())
			Expect(args).To(HaveKeyWithValue("verbose", true))
		})
	})
})
