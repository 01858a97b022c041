package transport

import (
	"encoding/json"
	"fmt"

	"github.com/gridmind/swarmplan/internal/controller"
	"github.com/gridmind/swarmplan/internal/observer"
	"github.com/gridmind/swarmplan/internal/planning"
	"github.com/gridmind/swarmplan/internal/unit"
)

// UnitAgentHandler exposes a unit agent to the RPC surface.
type UnitAgentHandler struct {
	Agent *unit.Agent
}

// HandleRPC implements Handler.
func (h *UnitAgentHandler) HandleRPC(method string, params json.RawMessage) (any, error) {
	switch method {
	case "update":
		var p updateParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("decode update: %w", err)
		}
		h.Agent.Update(p.SysConf, p.Candidate)
		return nil, nil
	case "new_negotiation":
		return nil, h.Agent.NewNegotiation()
	case "store_topology":
		var p storeTopologyParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("decode store_topology: %w", err)
		}
		return nil, h.Agent.StoreTopology(p.CtrlAddr, p.Neighbors, planning.SessionParams{
			Start:      p.Start,
			Resolution: p.Resolution,
			Intervals:  p.Intervals,
			Target:     p.Target,
			Weights:    p.Weights,
		})
	case "init_negotiation":
		return nil, h.Agent.InitNegotiation()
	case "stop_negotiation":
		return nil, h.Agent.StopNegotiation()
	case "set_schedule":
		var p setScheduleParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("decode set_schedule: %w", err)
		}
		return nil, h.Agent.SetSchedule(p.SID)
	case "set_possible_schedules":
		var p setSchedulesParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("decode set_possible_schedules: %w", err)
		}
		schedules := make([]planning.Schedule, len(p.Schedules))
		for i, s := range p.Schedules {
			schedules[i] = planning.Schedule(s)
		}
		h.Agent.Model().SetPossibleSchedules(schedules)
		return nil, nil
	case "stop":
		return nil, h.Agent.Stop()
	default:
		return nil, fmt.Errorf("unit agent: unknown method %q", method)
	}
}

// ControllerHandler exposes the controller to the RPC surface. Inbound
// registrations are resolved to proxies through the container.
type ControllerHandler struct {
	Ctrl      *controller.Controller
	Container *Container
}

// HandleRPC implements Handler.
func (h *ControllerHandler) HandleRPC(method string, params json.RawMessage) (any, error) {
	switch method {
	case "register_unit_agent":
		var p registerParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("decode register_unit_agent: %w", err)
		}
		proxy, err := h.Container.Connect(p.Addr)
		if err != nil {
			return nil, fmt.Errorf("connect registered agent: %w", err)
		}
		h.Ctrl.RegisterUnitAgent(proxy, p.Addr, p.Name)
		return nil, nil
	case "negotiation_finished":
		return nil, h.Ctrl.NegotiationFinished()
	default:
		return nil, fmt.Errorf("controller: unknown method %q", method)
	}
}

// ObserverHandler exposes the observer's agent-facing surface.
type ObserverHandler struct {
	Obs *observer.Observer
}

// HandleRPC implements Handler.
func (h *ObserverHandler) HandleRPC(method string, params json.RawMessage) (any, error) {
	switch method {
	case "register_unit_agent":
		var p registerParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("decode register_unit_agent: %w", err)
		}
		h.Obs.RegisterUnitAgent(p.Addr, p.Name)
		return nil, nil
	case "update_stats":
		var s planning.Stats
		if err := json.Unmarshal(params, &s); err != nil {
			return nil, fmt.Errorf("decode update_stats: %w", err)
		}
		return nil, h.Obs.UpdateStats(s)
	case "update_final_cand":
		var p finalCandidateParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("decode update_final_cand: %w", err)
		}
		return nil, h.Obs.UpdateFinalCandidate(p.Candidate)
	default:
		return nil, fmt.Errorf("observer: unknown method %q", method)
	}
}
