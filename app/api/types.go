package api

import (
	"github.com/Wangx-create/TRNNew/app/database"
	"github.com/Wangx-create/TRNNew/app/report"
	"github.com/Wangx-create/TRNNew/app/runner"
)

type RendererInterface interface {
	Run(result *runner.Result) (string, error)
}

var _ RendererInterface = (*report.Renderer)(nil)

type Handler struct {
	taskRepo    database.TaskRepository
	historyRepo database.HistoryRepository
	runner      *runner.Runner
	renderer    RendererInterface
	version     string
}

type taskRequest struct {
	Name           string              `json:"name"`
	UserID         string              `json:"user_id"`
	Keywords       []string            `json:"keywords"`
	Filters        []string            `json:"filters"`
	Platforms      []string            `json:"platforms"`
	Expansions     map[string][]string `json:"expansions"`
	ReportMode     string              `json:"report_mode"`
	ExpandKeywords *bool               `json:"expand_keywords"`
	Description    string              `json:"description"`
}

type taskUpdateRequest struct {
	Name           *string              `json:"name"`
	Keywords       *[]string            `json:"keywords"`
	Filters        *[]string            `json:"filters"`
	Platforms      *[]string            `json:"platforms"`
	Expansions     *map[string][]string `json:"expansions"`
	ReportMode     *string              `json:"report_mode"`
	ExpandKeywords *bool                `json:"expand_keywords"`
	Status         *string              `json:"status"`
	Description    *string              `json:"description"`
}

type runRequest struct {
	GenerateHTML bool `json:"generate_html"`
}

type searchRequest struct {
	Keywords       []string            `json:"keywords"`
	Filters        []string            `json:"filters"`
	Platforms      []string            `json:"platforms"`
	Expansions     map[string][]string `json:"expansions"`
	ReportMode     string              `json:"report_mode"`
	ExpandKeywords *bool               `json:"expand_keywords"`
	GenerateHTML   bool                `json:"generate_html"`
}

type linkItem struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	MobileURL string `json:"mobile_url"`
	Platform  string `json:"platform"`
	Keyword   string `json:"keyword"`
	Ranks     []int  `json:"ranks"`
}
