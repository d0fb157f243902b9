package handler_test

import (
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"hivemind.app/conduit/internal/http/handler"
	"hivemind.app/conduit/internal/orchestrator"
)

var _ = Describe("PromptHandler", func() {
	var (
		router *gin.Engine
		runner *mockTurnRunner
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		runner = &mockTurnRunner{}
		h := handler.NewPromptHandler(runner)
		router = gin.New()
		router.POST("/prompts/:id/confirm", h.Confirm)
		router.POST("/prompts/:id/cancel", h.Cancel)
	})

	It("confirms a pending prompt", func() {
		var confirmed int64
		runner.confirmFn = func(promptID int64) error {
			confirmed = promptID
			return nil
		}

		req := httptest.NewRequest(http.MethodPost, "/prompts/77/confirm", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(confirmed).To(Equal(int64(77)))
	})

	It("cancels a pending prompt", func() {
		var cancelled int64
		runner.cancelFn = func(promptID int64) error {
			cancelled = promptID
			return nil
		}

		req := httptest.NewRequest(http.MethodPost, "/prompts/77/cancel", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(cancelled).To(Equal(int64(77)))
	})

	It("returns 404 for an unknown or already resolved prompt", func() {
		runner.confirmFn = func(int64) error {
			return orchestrator.ErrUnknownPrompt
		}

		req := httptest.NewRequest(http.MethodPost, "/prompts/77/confirm", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusNotFound))
	})

	It("returns 500 on unexpected errors", func() {
		runner.cancelFn = func(int64) error {
			return errors.New("boom")
		}

		req := httptest.NewRequest(http.MethodPost, "/prompts/77/cancel", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusInternalServerError))
	})
})
