// Package driversim is an in-process stand-in for a real Z-Wave driver. It
// backs the server binary when no controller hardware is attached and gives
// tests a driver with scriptable nodes and deterministic events.
package driversim

import (
	"context"
	"fmt"
	"sync"

	"github.com/zwave-js/zwave-js-server-go/pkg/driver"
	"github.com/zwave-js/zwave-js-server-go/pkg/wire"
)

// NodeStatus mirrors the driver's node availability states.
type NodeStatus string

const (
	StatusAlive  NodeStatus = "alive"
	StatusAsleep NodeStatus = "asleep"
	StatusDead   NodeStatus = "dead"
)

// Node is one simulated device on the network.
type Node struct {
	NodeID      int            `json:"nodeId"`
	Name        string         `json:"name,omitempty"`
	DeviceClass string         `json:"deviceClass"`
	Status      NodeStatus     `json:"status"`
	Values      map[string]any `json:"values"`
}

func (n *Node) clone() *Node {
	cp := *n
	cp.Values = make(map[string]any, len(n.Values))
	for k, v := range n.Values {
		cp.Values[k] = v
	}
	return &cp
}

// Simulator implements driver.Driver over an in-memory network.
type Simulator struct {
	homeID  uint32
	version string

	mu              sync.Mutex
	nodes           map[int]*Node
	listeners       []func(driver.Event)
	inclusionActive bool
	exclusionActive bool
	nextNodeID      int
}

// New creates a simulator with an empty network.
func New(homeID uint32, version string) *Simulator {
	return &Simulator{
		homeID:     homeID,
		version:    version,
		nodes:      make(map[int]*Node),
		nextNodeID: 2, // node 1 is the controller itself
	}
}

// HomeID implements driver.Driver.
func (s *Simulator) HomeID() uint32 { return s.homeID }

// Version implements driver.Driver.
func (s *Simulator) Version() string { return s.version }

// NetworkState implements driver.Driver.
func (s *Simulator) NetworkState(context.Context) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodes := make([]*Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		nodes = append(nodes, n.clone())
	}
	return map[string]any{
		"controller": map[string]any{
			"homeId":          s.homeID,
			"inclusionActive": s.inclusionActive,
			"exclusionActive": s.exclusionActive,
		},
		"nodes": nodes,
	}, nil
}

// OnEvent implements driver.Driver.
func (s *Simulator) OnEvent(fn func(driver.Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// emit delivers one event to all listeners. Callers must not hold s.mu.
func (s *Simulator) emit(source wire.EventSource, name string, fields map[string]any) {
	s.mu.Lock()
	listeners := append([]func(driver.Event){}, s.listeners...)
	s.mu.Unlock()

	ev := driver.Event{Source: source, Name: name, Fields: fields}
	for _, fn := range listeners {
		fn(ev)
	}
}

// AddNode places a new node on the network and announces it. Used by the
// inclusion flow and directly by tests and the demo server.
func (s *Simulator) AddNode(name, deviceClass string, values map[string]any) *Node {
	if values == nil {
		values = make(map[string]any)
	}

	s.mu.Lock()
	node := &Node{
		NodeID:      s.nextNodeID,
		Name:        name,
		DeviceClass: deviceClass,
		Status:      StatusAlive,
		Values:      values,
	}
	s.nextNodeID++
	s.nodes[node.NodeID] = node
	snapshot := node.clone()
	s.mu.Unlock()

	s.emit(wire.SourceNode, "node added", map[string]any{"node": snapshot})
	return snapshot
}

// RemoveNode takes a node off the network and announces it.
func (s *Simulator) RemoveNode(nodeID int) error {
	s.mu.Lock()
	if _, ok := s.nodes[nodeID]; !ok {
		s.mu.Unlock()
		return driver.NewZWaveError(driver.CodeNodeNotFound, "node %d not found", nodeID)
	}
	delete(s.nodes, nodeID)
	s.mu.Unlock()

	s.emit(wire.SourceNode, "node removed", map[string]any{"nodeId": nodeID})
	return nil
}

// SetNodeStatus changes a node's availability and announces it.
func (s *Simulator) SetNodeStatus(nodeID int, status NodeStatus) error {
	s.mu.Lock()
	node, ok := s.nodes[nodeID]
	if !ok {
		s.mu.Unlock()
		return driver.NewZWaveError(driver.CodeNodeNotFound, "node %d not found", nodeID)
	}
	node.Status = status
	s.mu.Unlock()

	s.emit(wire.SourceNode, string(status), map[string]any{"nodeId": nodeID})
	return nil
}

// node returns a snapshot of one node.
func (s *Simulator) node(nodeID int) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.nodes[nodeID]
	if !ok {
		return nil, driver.NewZWaveError(driver.CodeNodeNotFound, "node %d not found", nodeID)
	}
	return node.clone(), nil
}

// getValue reads one value of a node.
func (s *Simulator) getValue(nodeID int, valueID string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.nodes[nodeID]
	if !ok {
		return nil, driver.NewZWaveError(driver.CodeNodeNotFound, "node %d not found", nodeID)
	}
	value, ok := node.Values[valueID]
	if !ok {
		return nil, driver.NewZWaveError(driver.CodeValueNotFound, "node %d has no value %q", nodeID, valueID)
	}
	return value, nil
}

// setValue writes one value of a node and announces the update.
func (s *Simulator) setValue(nodeID int, valueID string, value any) error {
	s.mu.Lock()
	node, ok := s.nodes[nodeID]
	if !ok {
		s.mu.Unlock()
		return driver.NewZWaveError(driver.CodeNodeNotFound, "node %d not found", nodeID)
	}
	if _, ok := node.Values[valueID]; !ok {
		s.mu.Unlock()
		return driver.NewZWaveError(driver.CodeValueNotFound, "node %d has no value %q", nodeID, valueID)
	}
	if node.Status == StatusDead {
		s.mu.Unlock()
		return driver.NewZWaveError(driver.CodeTimeout, "node %d did not respond", nodeID)
	}
	node.Values[valueID] = value
	s.mu.Unlock()

	s.emit(wire.SourceNode, "value updated", map[string]any{
		"nodeId":   nodeID,
		"valueId":  valueID,
		"newValue": value,
	})
	return nil
}

// beginInclusion opens the inclusion window.
func (s *Simulator) beginInclusion() error {
	s.mu.Lock()
	if s.inclusionActive {
		s.mu.Unlock()
		return wire.NewProtocolError("inclusionAlreadyActive", "inclusion already active")
	}
	if s.exclusionActive {
		s.mu.Unlock()
		return driver.NewZWaveError(driver.CodeInclusionBusy, "exclusion in progress")
	}
	s.inclusionActive = true
	s.mu.Unlock()

	s.emit(wire.SourceController, "inclusion started", nil)
	return nil
}

// stopInclusion closes the inclusion window.
func (s *Simulator) stopInclusion() {
	s.mu.Lock()
	wasActive := s.inclusionActive
	s.inclusionActive = false
	s.mu.Unlock()

	if wasActive {
		s.emit(wire.SourceController, "inclusion stopped", nil)
	}
}

// beginExclusion opens the exclusion window.
func (s *Simulator) beginExclusion() error {
	s.mu.Lock()
	if s.exclusionActive {
		s.mu.Unlock()
		return wire.NewProtocolError("exclusionAlreadyActive", "exclusion already active")
	}
	if s.inclusionActive {
		s.mu.Unlock()
		return driver.NewZWaveError(driver.CodeInclusionBusy, "inclusion in progress")
	}
	s.exclusionActive = true
	s.mu.Unlock()

	s.emit(wire.SourceController, "exclusion started", nil)
	return nil
}

// stopExclusion closes the exclusion window.
func (s *Simulator) stopExclusion() {
	s.mu.Lock()
	wasActive := s.exclusionActive
	s.exclusionActive = false
	s.mu.Unlock()

	if wasActive {
		s.emit(wire.SourceController, "exclusion stopped", nil)
	}
}

// softReset restarts the simulated driver and announces the lifecycle.
func (s *Simulator) softReset() {
	s.emit(wire.SourceDriver, "driver restarting", nil)
	s.emit(wire.SourceDriver, "driver ready", nil)
}

// NodeIDs returns the IDs of all nodes, for status surfaces.
func (s *Simulator) NodeIDs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	return ids
}

var _ driver.Driver = (*Simulator)(nil)

// String identifies the simulator in logs.
func (s *Simulator) String() string {
	return fmt.Sprintf("driversim(homeId=%#x)", s.homeID)
}
