package registry_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"hivemind.app/conduit/core/config"
	"hivemind.app/conduit/internal/model"
	"hivemind.app/conduit/internal/registry"
)

type stubSource struct {
	tools map[string][]model.ToolDescriptor
	errs  map[string]error
}

func (s *stubSource) ListTools(_ context.Context, svc config.ToolServiceConfig) ([]model.ToolDescriptor, error) {
	if err, ok := s.errs[svc.ID]; ok {
		return nil, err
	}
	return append([]model.ToolDescriptor(nil), s.tools[svc.ID]...), nil
}

var _ = Describe("Registry", func() {
	var (
		ctx      context.Context
		source   *stubSource
		services []config.ToolServiceConfig
	)

	BeforeEach(func() {
		ctx = context.Background()
		source = &stubSource{
			tools: map[string][]model.ToolDescriptor{
				"intel": {
					{Name: "lookup_ip", Description: "Look up an IP"},
					{Name: "block_ip", Description: "Block an IP"},
				},
				"cases": {
					{Name: "create_case", Description: "Open a case"},
				},
			},
			errs: map[string]error{},
		}
		services = []config.ToolServiceConfig{
			{ID: "intel", Name: "Threat Intel", Endpoint: "http://intel.local/mcp", Enabled: true, AutoExec: []string{"lookup_ip"}},
			{ID: "cases", Name: "Case Manager", Endpoint: "http://cases.local/mcp", Enabled: true},
		}
	})

	Describe("Refresh", func() {
		It("aggregates all enabled services into one catalog", func() {
			reg := registry.New(source, services, nil)
			Expect(reg.Refresh(ctx)).To(Succeed())

			catalog, err := reg.Catalog()
			Expect(err).NotTo(HaveOccurred())
			Expect(catalog).To(HaveLen(3))
		})

		It("stamps service ownership and auto-execution onto descriptors", func() {
			reg := registry.New(source, services, nil)
			Expect(reg.Refresh(ctx)).To(Succeed())

			desc, ok := reg.FindOwner("lookup_ip")
			Expect(ok).To(BeTrue())
			Expect(desc.ServiceID).To(Equal("intel"))
			Expect(desc.AutoExecute).To(BeTrue())

			desc, ok = reg.FindOwner("block_ip")
			Expect(ok).To(BeTrue())
			Expect(desc.AutoExecute).To(BeFalse())
		})

		It("skips disabled services entirely", func() {
			services[1].Enabled = false
			reg := registry.New(source, services, nil)
			Expect(reg.Refresh(ctx)).To(Succeed())

			_, ok := reg.FindOwner("create_case")
			Expect(ok).To(BeFalse())
		})

		It("keeps other services usable when one fails to list", func() {
			source.errs["cases"] = errors.New("connection refused")
			reg := registry.New(source, services, nil)

			err := reg.Refresh(ctx)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("cases"))

			catalog, catErr := reg.Catalog()
			Expect(catErr).NotTo(HaveOccurred())
			Expect(catalog).To(HaveLen(2))
		})
	})

	Describe("tool enablement", func() {
		It("defaults unlisted tools to enabled", func() {
			reg := registry.New(source, services, map[string]bool{})
			Expect(reg.Refresh(ctx)).To(Succeed())

			_, ok := reg.FindOwner("lookup_ip")
			Expect(ok).To(BeTrue())
		})

		It("excludes explicitly disabled tools from the catalog", func() {
			reg := registry.New(source, services, map[string]bool{"intel:block_ip": false})
			Expect(reg.Refresh(ctx)).To(Succeed())

			_, ok := reg.FindOwner("block_ip")
			Expect(ok).To(BeFalse())
			_, ok = reg.FindOwner("lookup_ip")
			Expect(ok).To(BeTrue())
		})
	})

	Describe("name collisions", func() {
		BeforeEach(func() {
			source.tools["cases"] = append(source.tools["cases"], model.ToolDescriptor{Name: "lookup_ip"})
		})

		It("keeps the first occurrence and reports the duplicate", func() {
			reg := registry.New(source, services, nil)
			Expect(reg.Refresh(ctx)).To(Succeed())

			catalog, err := reg.Catalog()
			Expect(err).To(MatchError(registry.ErrDuplicateTool))
			Expect(err.Error()).To(ContainSubstring("lookup_ip"))

			count := 0
			for _, desc := range catalog {
				if desc.Name == "lookup_ip" {
					count++
					Expect(desc.ServiceID).To(Equal("intel"))
				}
			}
			Expect(count).To(Equal(1))
		})
	})

	Describe("Endpoint", func() {
		It("resolves configured services and rejects unknown ones", func() {
			reg := registry.New(source, services, nil)

			endpoint, ok := reg.Endpoint("intel")
			Expect(ok).To(BeTrue())
			Expect(endpoint).To(Equal("http://intel.local/mcp"))

			_, ok = reg.Endpoint("nope")
			Expect(ok).To(BeFalse())
		})
	})
})
