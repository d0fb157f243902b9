package dto

import "hivemind.app/conduit/internal/model"

type ToolResponse struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
	AutoExecute bool   `json:"auto_execute"`
}

type ToolServiceResponse struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Enabled bool           `json:"enabled"`
	Tools   []ToolResponse `json:"tools"`
}

type ToolCatalogResponse struct {
	Services []ToolServiceResponse `json:"services"`
	Warning  string                `json:"warning,omitempty"` // set on name collisions
}

func ToToolServiceResponse(svc model.ToolService) ToolServiceResponse {
	out := ToolServiceResponse{
		ID:      svc.ID,
		Name:    svc.Name,
		Enabled: svc.Enabled,
		Tools:   make([]ToolResponse, 0, len(svc.Tools)),
	}
	for _, tool := range svc.Tools {
		out.Tools = append(out.Tools, ToolResponse{
			Name:        tool.Name,
			Description: tool.Description,
			Enabled:     tool.Enabled,
			AutoExecute: tool.AutoExecute,
		})
	}
	return out
}
