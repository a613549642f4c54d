// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package ingest

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// nodeResolver resolves a node_mqtt_id to a stable node_id, supplementing
// the distilled spec with the original ingestor's full resolution chain:
// (a) the identifier itself if it already parses as a UUID, (b) an
// in-memory alias cache, (c) a metadata-store lookup by agent_node_id, (d) a
// MAC-hint fallback. Whichever step succeeds is cached so later messages for
// the same node skip the chain.
type nodeResolver struct {
	store MetadataStore

	mu     sync.RWMutex
	alias  map[string]string // node_mqtt_id -> resolved node_id
}

func newNodeResolver(store MetadataStore) *nodeResolver {
	return &nodeResolver{store: store, alias: make(map[string]string)}
}

func (r *nodeResolver) resolve(ctx context.Context, nodeMQTTID, macHint string) (string, bool, error) {
	if id, err := uuid.Parse(nodeMQTTID); err == nil {
		r.cache(nodeMQTTID, id.String())
		return id.String(), true, nil
	}

	r.mu.RLock()
	cached, ok := r.alias[nodeMQTTID]
	r.mu.RUnlock()
	if ok {
		return cached, true, nil
	}

	if node, found, err := r.store.NodeByAgentID(ctx, nodeMQTTID); err != nil {
		return "", false, err
	} else if found {
		r.cache(nodeMQTTID, node.NodeID)
		return node.NodeID, true, nil
	}

	if macHint != "" {
		if node, found, err := r.store.NodeByMACHint(ctx, macHint); err != nil {
			return "", false, err
		} else if found {
			r.cache(nodeMQTTID, node.NodeID)
			return node.NodeID, true, nil
		}
	}

	return "", false, nil
}

func (r *nodeResolver) cache(nodeMQTTID, nodeID string) {
	r.mu.Lock()
	r.alias[nodeMQTTID] = nodeID
	r.mu.Unlock()
}
