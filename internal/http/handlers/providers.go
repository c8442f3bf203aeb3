package handlers

import (
	"net/http"

	"paygate/internal/http/respond"
	"paygate/internal/provider"
)

func ListProviders(reg *provider.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, http.StatusOK, map[string]any{"data": reg.Describe()})
	}
}

type activeResp struct {
	Country    string                   `json:"country"`
	Provider   string                   `json:"provider"`
	Operations []provider.OperationType `json:"supported_operations"`
}

func GetActive(p *provider.Processor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gw, country, code, err := p.Active()
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, activeResp{Country: country, Provider: code, Operations: gw.SupportedOperations()})
	}
}

// SwitchActive replaces the processor's active gateway.
func SwitchActive(p *provider.Processor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Country  string `json:"country"`
			Provider string `json:"provider"`
		}
		if !decode(w, r, &in) {
			return
		}
		gw, err := p.Use(in.Country, in.Provider)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, activeResp{Country: in.Country, Provider: in.Provider, Operations: gw.SupportedOperations()})
	}
}
