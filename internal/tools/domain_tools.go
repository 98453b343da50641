package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
)

var domainHTTPClient = &http.Client{Timeout: 5 * time.Second}

func (r *Registry) registerDomainTools() {
	r.register(Tool{
		Info: &schema.ToolInfo{
			Name:        "wallet_balance",
			Desc:        "Get the user's current in-game wallet balance.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
		},
		Run: r.domainLookup("wallet"),
	})

	r.register(Tool{
		Info: &schema.ToolInfo{
			Name:        "fleet_status",
			Desc:        "Get the current status of the user's fleet: ships, locations, damage.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
		},
		Run: r.domainLookup("fleet"),
	})
}

// domainLookup proxies a read-only query to the game API. Without an
// endpoint configured the tool answers with a fixed notice so the model
// can tell the user instead of failing the turn.
func (r *Registry) domainLookup(resource string) Handler {
	return func(ctx context.Context, userID string, args map[string]any) (string, error) {
		if r.domainEndpoint == "" {
			return fmt.Sprintf("the %s service is not configured", resource), nil
		}

		endpoint := fmt.Sprintf("%s/%s/%s",
			strings.TrimRight(r.domainEndpoint, "/"), resource, url.PathEscape(userID))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return "", err
		}

		resp, err := domainHTTPClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("%s lookup failed: %w", resource, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 8192))
		if err != nil {
			return "", err
		}
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("%s lookup returned %d", resource, resp.StatusCode)
		}
		return strings.TrimSpace(string(body)), nil
	}
}
