package tools_test

import (
	"context"
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"hivemind.app/conduit/core/config"
	"hivemind.app/conduit/internal/tools"
)

var _ = Describe("BuiltinService", func() {
	var (
		ctx context.Context
		svc *tools.BuiltinService
	)

	BeforeEach(func() {
		ctx = context.Background()
		svc = tools.NewBuiltinService()
	})

	Describe("ListTools", func() {
		It("exposes extract_observables with a generated schema", func() {
			descriptors, err := svc.ListTools(ctx, config.ToolServiceConfig{})

			Expect(err).NotTo(HaveOccurred())
			Expect(descriptors).To(HaveLen(1))
			Expect(descriptors[0].Name).To(Equal("extract_observables"))

			schema, err := tools.ParseSchema(descriptors[0].Schema)
			Expect(err).NotTo(HaveOccurred())
			Expect(schema.Properties).To(HaveKey("text"))
		})
	})

	Describe("extract_observables", func() {
		extract := func(text string) map[string][]string {
			raw, err := svc.Call(ctx, "extract_observables", map[string]any{"text": text})
			Expect(err).NotTo(HaveOccurred())

			var out map[string][]string
			Expect(json.Unmarshal([]byte(raw), &out)).To(Succeed())
			return out
		}

		It("extracts and deduplicates IP addresses", func() {
			out := extract("traffic from 10.0.0.5 to 8.8.8.8, again 10.0.0.5")
			Expect(out["ips"]).To(Equal([]string{"10.0.0.5", "8.8.8.8"}))
		})

		It("extracts domains but not email hosts", func() {
			out := extract("phish from billing@evil-corp.net linking to login.evil-corp.net")
			Expect(out["domains"]).To(ContainElement("login.evil-corp.net"))
			Expect(out["domains"]).NotTo(ContainElement("evil-corp.net"))
			Expect(out["emails"]).To(Equal([]string{"billing@evil-corp.net"}))
		})

		It("extracts md5 and sha256 hashes", func() {
			md5 := "d41d8cd98f00b204e9800998ecf8427e"
			sha256 := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
			out := extract("dropper " + md5 + " payload " + sha256)
			Expect(out["hashes"]).To(ContainElements(md5, sha256))
		})

		It("rejects a wrongly-typed text argument", func() {
			_, err := svc.Call(ctx, "extract_observables", map[string]any{"text": 42})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("parse tool arguments"))
		})

		It("returns empty lists for text without indicators", func() {
			out := extract("nothing of interest here")
			Expect(out["ips"]).To(BeEmpty())
			Expect(out["hashes"]).To(BeEmpty())
		})
	})

	It("rejects unknown builtin tools", func() {
		_, err := svc.Call(ctx, "no_such_tool", nil)
		Expect(err).To(HaveOccurred())
	})
})
