package tunnel

import (
	"github.com/skywave-systems/pqtun-core/internal/controlapi"
)

// controlAPIHandlers builds the optional local control API's command
// table, dispatching rekey requests onto rekeyRequests rather than driving
// the coordinator loop directly (spec section 6.3).
func (c *CoreContext) controlAPIHandlers(rekeyRequests chan<- rekeyRequest) controlapi.Handlers {
	return controlapi.Handlers{
		Ping: func() controlapi.Response {
			return controlapi.Response{OK: true}
		},
		Status: func() controlapi.Response {
			return controlapi.Response{OK: true, Status: c.buildStatusSnapshot()}
		},
		Rekey: func(suiteID string) controlapi.Response {
			if !coordinatorRole(c.Role, c.Config) {
				return controlapi.Response{OK: false, Error: "coordinator_only"}
			}
			select {
			case rekeyRequests <- rekeyRequest{suiteID: suiteID, reason: "operator_requested"}:
				return controlapi.Response{OK: true}
			default:
				return controlapi.Response{OK: false, Error: "a rekey is already queued"}
			}
		},
		Shutdown: func() controlapi.Response {
			c.mu.Lock()
			cancel := c.cancel
			c.mu.Unlock()
			if cancel != nil {
				cancel()
			}
			return controlapi.Response{OK: true}
		},
	}
}
