package config

import "github.com/dep2p/go-groupstack/pkg/types"

func stackNamed(name string) types.StackDefinition {
	return types.StackDefinition{
		Name:      name,
		Transport: &types.TransportDefinition{Type: "TCP"},
		Protocols: []types.ProtocolDefinition{{Type: "PING"}},
	}
}
