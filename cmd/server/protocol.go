// Package main provides a TCP server for viewdb.
package main

import (
	"encoding/json"
	"fmt"

	"github.com/nickyhof/viewdb/core"
)

// Operations accepted in Request.Op.
const (
	OpList          = "list"
	OpDescribe      = "describe"
	OpCreate        = "create"
	OpDrop          = "drop"
	OpActivate      = "activate"
	OpInactivate    = "inactivate"
	OpInactivateAll = "inactivate_all"
	OpRebuild       = "rebuild"
	OpRefresh       = "refresh"
	OpCount         = "count"
	OpIndexes       = "indexes"
	OpReload        = "reload"
)

// Request is one JSON line sent by the client.
type Request struct {
	Op         string              `json:"op"`
	Database   string              `json:"database"`
	View       string              `json:"view,omitempty"`
	Names      []string            `json:"names,omitempty"`
	Definition *ViewDefinition     `json:"definition,omitempty"`
	Rows       []map[string]string `json:"rows,omitempty"`
}

// ViewDefinition is the client form of a view configuration.
type ViewDefinition struct {
	Name                  string                 `json:"name"`
	Query                 string                 `json:"query"`
	Updatable             bool                   `json:"updatable,omitempty"`
	UpdateIntervalSeconds int                    `json:"updateIntervalSeconds,omitempty"`
	UpdateStrategy        string                 `json:"updateStrategy,omitempty"`
	WatchClasses          []string               `json:"watchClasses,omitempty"`
	OriginRidField        string                 `json:"originRidField,omitempty"`
	Nodes                 []string               `json:"nodes,omitempty"`
	Indexes               [][]core.IndexProperty `json:"indexes,omitempty"`
}

// Config converts the definition into a view configuration.
func (d ViewDefinition) Config() (*core.ViewConfig, error) {
	cfg := core.NewViewConfig(d.Name, d.Query).
		SetUpdatable(d.Updatable).
		SetUpdateIntervalSeconds(d.UpdateIntervalSeconds).
		SetWatchClasses(d.WatchClasses).
		SetOriginRidField(d.OriginRidField).
		SetNodes(d.Nodes)

	switch strategy := core.UpdateStrategy(d.UpdateStrategy); strategy {
	case "":
	case core.UpdateStrategyBatch, core.UpdateStrategyLive:
		cfg.SetUpdateStrategy(strategy)
	default:
		return nil, fmt.Errorf("unknown update strategy: %s", d.UpdateStrategy)
	}

	for _, props := range d.Indexes {
		idx := cfg.AddIndex()
		for _, prop := range props {
			idx.AddProperty(prop.Name, prop.Type)
		}
	}
	return cfg, nil
}

// Response represents the server's response to a request.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Type    string          `json:"type,omitempty"` // "query", "commit", "view", "count" or "auth"
	Result  json.RawMessage `json:"result,omitempty"`
}

// QueryResponse contains tabular results.
type QueryResponse struct {
	Columns     []string   `json:"columns"`
	Data        [][]string `json:"data"`
	RecordsRead int        `json:"records_read"`
	TimeMs      float64    `json:"time_ms"`
}

// CommitResponse contains mutation results.
type CommitResponse struct {
	Transaction        string  `json:"transaction,omitempty"`
	ViewsCreated       int     `json:"views_created,omitempty"`
	ViewsDropped       int     `json:"views_dropped,omitempty"`
	ViewsLoaded        int     `json:"views_loaded,omitempty"`
	IndexesCreated     int     `json:"indexes_created,omitempty"`
	IndexesDropped     int     `json:"indexes_dropped,omitempty"`
	IndexesActivated   int     `json:"indexes_activated,omitempty"`
	IndexesInactivated int     `json:"indexes_inactivated,omitempty"`
	RecordsWritten     int     `json:"records_written,omitempty"`
	TimeMs             float64 `json:"time_ms"`
}

// CountResponse contains a view row count.
type CountResponse struct {
	Count int64 `json:"count"`
}

// AuthResponse contains the result of an AUTH command.
type AuthResponse struct {
	Authenticated bool   `json:"authenticated"`
	Identity      string `json:"identity"`
	ExpiresIn     int    `json:"expires_in,omitempty"`
}

// EncodeResponse serializes a Response to JSON with a newline.
func EncodeResponse(resp Response) ([]byte, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// DecodeRequest parses a JSON request from a byte slice.
func DecodeRequest(data []byte) (Request, error) {
	var req Request
	err := json.Unmarshal(data, &req)
	return req, err
}
