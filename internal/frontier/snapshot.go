package frontier

import (
	"context"
	"strconv"
)

// NodeState is a node's entry in the State layout.
type NodeState struct {
	LastActive int64 `json:"last_active"`
}

// ClaimState is an in-flight entry in the State layout.
type ClaimState struct {
	NodeID     int   `json:"node_id"`
	ClaimStart int64 `json:"claim_start"`
}

// State is the logical frontier layout shared with operators and tooling:
// every identifier appears in at most one of Completed, Failed, and InFlight.
type State struct {
	LastUpdated int64                 `json:"last_updated"`
	Nodes       map[string]NodeState  `json:"nodes"`
	Completed   []string              `json:"completed"`
	Failed      []string              `json:"failed"`
	InFlight    map[string]ClaimState `json:"in_flight"`
}

// Snapshot reads a consistent State.
func (s *Store) Snapshot(ctx context.Context) (State, error) {
	var state State
	err := s.View(ctx, func(tx *Tx) error {
		state = State{
			Nodes:     map[string]NodeState{},
			Completed: []string{},
			Failed:    []string{},
			InFlight:  map[string]ClaimState{},
		}
		lastUpdated, err := tx.LastUpdated(ctx)
		if err != nil {
			return err
		}
		state.LastUpdated = lastUpdated.Unix()

		nodes, err := tx.Nodes(ctx)
		if err != nil {
			return err
		}
		for _, node := range nodes {
			state.Nodes[strconv.Itoa(node.NodeID)] = NodeState{LastActive: node.LastActive.Unix()}
		}

		items, err := tx.ItemsByStatus(ctx, StatusClaimed, StatusCompleted, StatusFailed)
		if err != nil {
			return err
		}
		for _, item := range items {
			switch item.Status {
			case StatusCompleted:
				state.Completed = append(state.Completed, item.Identifier)
			case StatusFailed:
				state.Failed = append(state.Failed, item.Identifier)
			case StatusClaimed:
				state.InFlight[item.Identifier] = ClaimState{NodeID: item.OwnerNode, ClaimStart: item.ClaimStart.Unix()}
			}
		}
		return nil
	})
	if err != nil {
		return State{}, err
	}
	return state, nil
}
