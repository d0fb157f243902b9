package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"hivemind.app/conduit/common/id"
	"hivemind.app/conduit/internal/http/handler"
	"hivemind.app/conduit/internal/model"
	"hivemind.app/conduit/internal/store"
)

var _ = Describe("ConversationHandler", func() {
	var (
		router *gin.Engine
		convs  *mockConversationStore
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		Expect(id.Init(1)).To(Succeed())

		convs = &mockConversationStore{}
		h := handler.NewConversationHandler(convs)
		router = gin.New()
		router.POST("/conversations", h.Create)
		router.GET("/conversations", h.List)
		router.GET("/conversations/:id", h.Get)
		router.PATCH("/conversations/:id", h.Rename)
		router.PUT("/conversations/:id/metadata", h.SetMetadata)
		router.DELETE("/conversations/:id", h.Delete)
	})

	Describe("Create", func() {
		It("returns 201 with the created conversation", func() {
			var captured *model.Conversation
			convs.createFn = func(_ context.Context, conv *model.Conversation) error {
				captured = conv
				return nil
			}

			body, _ := json.Marshal(map[string]any{
				"title":    "Phishing triage",
				"metadata": map[string]string{"case": "SOC-1042"},
			})
			req := httptest.NewRequest(http.MethodPost, "/conversations", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusCreated))
			Expect(captured).NotTo(BeNil())
			Expect(captured.ID).NotTo(BeZero())
			Expect(captured.Title).To(Equal("Phishing triage"))
			Expect(captured.Metadata).To(HaveKeyWithValue("case", "SOC-1042"))
		})

		It("returns 500 when the store fails", func() {
			convs.createFn = func(_ context.Context, _ *model.Conversation) error {
				return errors.New("boom")
			}

			req := httptest.NewRequest(http.MethodPost, "/conversations", bytes.NewBufferString(`{}`))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("Get", func() {
		It("returns the conversation with its messages", func() {
			convs.getByIDFn = func(_ context.Context, convID int64) (*model.Conversation, error) {
				return &model.Conversation{
					ID:    convID,
					Title: "Phishing triage",
					Messages: []model.Message{
						{ID: 1, Role: model.RoleUser, Content: "Check 1.2.3.4"},
						{ID: 2, Role: model.RoleAssistant, Content: "Looks clean."},
					},
				}, nil
			}

			req := httptest.NewRequest(http.MethodGet, "/conversations/42", nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["id"]).To(Equal("42"))
			Expect(resp["messages"]).To(HaveLen(2))
		})

		It("returns 404 for an unknown conversation", func() {
			convs.getByIDFn = func(_ context.Context, _ int64) (*model.Conversation, error) {
				return nil, store.ErrNotFound
			}

			req := httptest.NewRequest(http.MethodGet, "/conversations/42", nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusNotFound))
		})

		It("returns 400 for a malformed id", func() {
			req := httptest.NewRequest(http.MethodGet, "/conversations/forty-two", nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("Rename", func() {
		It("returns 204 and passes the new title through", func() {
			var gotTitle string
			convs.updateTitleFn = func(_ context.Context, _ int64, title string) error {
				gotTitle = title
				return nil
			}

			body, _ := json.Marshal(map[string]string{"title": "Escalated: C2 beacon"})
			req := httptest.NewRequest(http.MethodPatch, "/conversations/42", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusNoContent))
			Expect(gotTitle).To(Equal("Escalated: C2 beacon"))
		})

		It("rejects an empty title", func() {
			req := httptest.NewRequest(http.MethodPatch, "/conversations/42", bytes.NewBufferString(`{"title":""}`))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 404 when the conversation does not exist", func() {
			convs.updateTitleFn = func(_ context.Context, _ int64, _ string) error {
				return store.ErrNotFound
			}

			req := httptest.NewRequest(http.MethodPatch, "/conversations/42", bytes.NewBufferString(`{"title":"x"}`))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("SetMetadata", func() {
		It("returns 204 on success", func() {
			var gotKey, gotValue string
			convs.setMetadataFn = func(_ context.Context, _ int64, key, value string) error {
				gotKey, gotValue = key, value
				return nil
			}

			body, _ := json.Marshal(map[string]string{"key": "case", "value": "SOC-1042"})
			req := httptest.NewRequest(http.MethodPut, "/conversations/42/metadata", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusNoContent))
			Expect(gotKey).To(Equal("case"))
			Expect(gotValue).To(Equal("SOC-1042"))
		})
	})

	Describe("Delete", func() {
		It("returns 404 when the conversation does not exist", func() {
			convs.deleteFn = func(_ context.Context, _ int64) error {
				return store.ErrNotFound
			}

			req := httptest.NewRequest(http.MethodDelete, "/conversations/42", nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
	})
})
