package driversim

import (
	"context"

	"github.com/zwave-js/zwave-js-server-go/pkg/driver"
	"github.com/zwave-js/zwave-js-server-go/pkg/gateway"
	"github.com/zwave-js/zwave-js-server-go/pkg/wire"
)

// Handlers binds the simulator to the three command groups.
func (s *Simulator) Handlers() gateway.HandlerSet {
	return gateway.HandlerSet{
		Driver:     driver.HandlerFunc(s.handleDriver),
		Controller: driver.HandlerFunc(s.handleController),
		Node:       driver.HandlerFunc(s.handleNode),
	}
}

func unknownAction(command string) error {
	return wire.NewProtocolError(wire.ErrorCodeUnknownCommand, "%s", command)
}

func (s *Simulator) handleDriver(_ context.Context, action string, cmd *wire.CommandEnvelope) (any, error) {
	switch action {
	case "get_config":
		return map[string]any{
			"homeId":        s.HomeID(),
			"driverVersion": s.Version(),
		}, nil
	case "soft_reset":
		s.softReset()
		return nil, nil
	case "check_for_config_updates":
		// The simulator has no device database to update.
		return map[string]any{"updateAvailable": false}, nil
	default:
		return nil, unknownAction(cmd.Command)
	}
}

func (s *Simulator) handleController(_ context.Context, action string, cmd *wire.CommandEnvelope) (any, error) {
	switch action {
	case "get_state":
		s.mu.Lock()
		state := map[string]any{
			"homeId":          s.homeID,
			"inclusionActive": s.inclusionActive,
			"exclusionActive": s.exclusionActive,
			"nodeCount":       len(s.nodes),
		}
		s.mu.Unlock()
		return state, nil
	case "begin_inclusion":
		if err := s.beginInclusion(); err != nil {
			return nil, err
		}
		return map[string]any{"success": true}, nil
	case "stop_inclusion":
		s.stopInclusion()
		return map[string]any{"success": true}, nil
	case "begin_exclusion":
		if err := s.beginExclusion(); err != nil {
			return nil, err
		}
		return map[string]any{"success": true}, nil
	case "stop_exclusion":
		s.stopExclusion()
		return map[string]any{"success": true}, nil
	default:
		return nil, unknownAction(cmd.Command)
	}
}

func (s *Simulator) handleNode(_ context.Context, action string, cmd *wire.CommandEnvelope) (any, error) {
	switch action {
	case "get_state":
		nodeID, err := intField(cmd, "nodeId")
		if err != nil {
			return nil, err
		}
		node, err := s.node(nodeID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"node": node}, nil
	case "ping":
		nodeID, err := intField(cmd, "nodeId")
		if err != nil {
			return nil, err
		}
		node, err := s.node(nodeID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"responded": node.Status != StatusDead}, nil
	case "get_value":
		nodeID, err := intField(cmd, "nodeId")
		if err != nil {
			return nil, err
		}
		valueID, err := stringField(cmd, "valueId")
		if err != nil {
			return nil, err
		}
		value, err := s.getValue(nodeID, valueID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"value": value}, nil
	case "set_value":
		nodeID, err := intField(cmd, "nodeId")
		if err != nil {
			return nil, err
		}
		valueID, err := stringField(cmd, "valueId")
		if err != nil {
			return nil, err
		}
		var value any
		present, ferr := cmd.Field("value", &value)
		if ferr != nil || !present {
			return nil, wire.NewProtocolError("invalidParams", "value is required")
		}
		if err := s.setValue(nodeID, valueID, value); err != nil {
			return nil, err
		}
		return map[string]any{"success": true}, nil
	default:
		return nil, unknownAction(cmd.Command)
	}
}

func intField(cmd *wire.CommandEnvelope, name string) (int, error) {
	var v int
	present, err := cmd.Field(name, &v)
	if err != nil || !present {
		return 0, wire.NewProtocolError("invalidParams", "%s is required and must be a number", name)
	}
	return v, nil
}

func stringField(cmd *wire.CommandEnvelope, name string) (string, error) {
	var v string
	present, err := cmd.Field(name, &v)
	if err != nil || !present {
		return "", wire.NewProtocolError("invalidParams", "%s is required and must be a string", name)
	}
	return v, nil
}
