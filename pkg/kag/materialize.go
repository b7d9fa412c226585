package kag

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/noufalpm/invograph/pkg/graphstore"
	"github.com/noufalpm/invograph/pkg/kag/metrics"
)

// Materializer turns a (schema, extracted data) pair into graph nodes and
// edges. It is fully deterministic: no model calls happen past this point.
//
// There is no rollback. Any failed write aborts the ingestion and the
// caller must retry the whole document.
type Materializer struct {
	store  graphstore.Querier
	logger *logrus.Logger
}

// NewMaterializer creates a materializer writing through the given store.
func NewMaterializer(store graphstore.Querier, logger *logrus.Logger) *Materializer {
	return &Materializer{store: store, logger: logger}
}

// MaterializeDynamic writes the dynamically inferred graph: one Document
// node, one node per extracted entity instance, a CONTAINS edge for each,
// and the schema's declared relationships with cardinality resolved from
// the shape of the extracted values.
func (m *Materializer) MaterializeDynamic(ctx context.Context, documentID string, schema DocumentSchema, extracted map[string]interface{}) error {
	documentType, _ := extracted["document_type"].(string)
	if documentType == "" {
		documentType = "unknown"
	}

	_, err := m.store.ExecuteQuery(ctx,
		`CREATE (d:Document {id: $document_id, type: $document_type})`,
		map[string]interface{}{
			"document_id":   documentID,
			"document_type": documentType,
		})
	if err != nil {
		return errors.Wrap(err, "failed to create document node")
	}
	metrics.GraphNodesCreated.WithLabelValues("Document").Inc()

	// Nodes first: every extracted instance becomes a node scoped to this
	// document via a CONTAINS edge and a synthetic node_id.
	for _, entity := range schema.Entities {
		value, ok := extracted[entity.Name]
		if !ok {
			continue
		}

		switch v := value.(type) {
		case []interface{}:
			for i, item := range v {
				props, ok := item.(map[string]interface{})
				if !ok {
					continue
				}
				nodeID := fmt.Sprintf("%s_%d", entity.Name, i)
				if err := m.createEntityNode(ctx, documentID, entity.Type, props, nodeID); err != nil {
					return err
				}
			}
		case map[string]interface{}:
			if err := m.createEntityNode(ctx, documentID, entity.Type, v, entity.Name); err != nil {
				return err
			}
		}
	}

	// Then edges. A relationship whose source or target is absent from the
	// extracted data is skipped silently.
	for _, entity := range schema.Entities {
		for _, rel := range entity.Relationships {
			if err := m.materializeRelationship(ctx, documentID, entity.Name, rel, extracted); err != nil {
				return err
			}
		}
	}

	return nil
}

// materializeRelationship resolves cardinality from the shapes of the
// source and target values. list x list is a full cross product: an O(n*m)
// upper bound that is acceptable for small line-item counts.
func (m *Materializer) materializeRelationship(ctx context.Context, documentID, sourceName string, rel RelationshipSchema, extracted map[string]interface{}) error {
	sourceData, sourceOK := extracted[sourceName]
	targetData, targetOK := extracted[rel.RelatedTo]
	if !sourceOK || !targetOK {
		return nil
	}

	relType := SanitizeRelationshipType(rel.RelationshipType)

	sourceList, sourceIsList := sourceData.([]interface{})
	targetList, targetIsList := targetData.([]interface{})

	switch {
	case sourceIsList && targetIsList:
		for i := range sourceList {
			for j := range targetList {
				if err := m.createRelationship(ctx, documentID,
					fmt.Sprintf("%s_%d", sourceName, i),
					fmt.Sprintf("%s_%d", rel.RelatedTo, j), relType); err != nil {
					return err
				}
			}
		}
	case sourceIsList:
		for i := range sourceList {
			if err := m.createRelationship(ctx, documentID,
				fmt.Sprintf("%s_%d", sourceName, i), rel.RelatedTo, relType); err != nil {
				return err
			}
		}
	case targetIsList:
		for j := range targetList {
			if err := m.createRelationship(ctx, documentID,
				sourceName, fmt.Sprintf("%s_%d", rel.RelatedTo, j), relType); err != nil {
				return err
			}
		}
	default:
		if err := m.createRelationship(ctx, documentID, sourceName, rel.RelatedTo, relType); err != nil {
			return err
		}
	}

	return nil
}

func (m *Materializer) createEntityNode(ctx context.Context, documentID, entityType string, props map[string]interface{}, nodeID string) error {
	normalized := NormalizeProperties(props)
	normalized["node_id"] = nodeID

	label := SanitizeIdentifier(entityType)

	cypher := fmt.Sprintf(`MATCH (d:Document {id: $document_id})
CREATE (e:%s $properties)
CREATE (d)-[:CONTAINS]->(e)`, label)

	_, err := m.store.ExecuteQuery(ctx, cypher, map[string]interface{}{
		"document_id": documentID,
		"properties":  normalized,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to create %s node %s", label, nodeID)
	}

	metrics.GraphNodesCreated.WithLabelValues(label).Inc()
	metrics.GraphEdgesCreated.WithLabelValues("CONTAINS").Inc()
	return nil
}

// createRelationship links two entity nodes inside one document's subgraph.
// node_id values are only unique per document, so both matches anchor on
// the CONTAINS edge from the owning Document.
func (m *Materializer) createRelationship(ctx context.Context, documentID, sourceID, targetID, relType string) error {
	cypher := fmt.Sprintf(`MATCH (d:Document {id: $document_id})
MATCH (source {node_id: $source_id})<-[:CONTAINS]-(d)
MATCH (target {node_id: $target_id})<-[:CONTAINS]-(d)
CREATE (source)-[:%s]->(target)`, relType)

	_, err := m.store.ExecuteQuery(ctx, cypher, map[string]interface{}{
		"document_id": documentID,
		"source_id":   sourceID,
		"target_id":   targetID,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to create %s relationship %s -> %s", relType, sourceID, targetID)
	}

	metrics.GraphEdgesCreated.WithLabelValues(relType).Inc()
	return nil
}

// MaterializeInvoice writes the invoice fast-path structure: an Invoice
// document node carrying the invoice fields, entity nodes with positional
// node ids, CONTAINS edges and the extracted relationships.
func (m *Materializer) MaterializeInvoice(ctx context.Context, documentID string, structure *GraphStructure, storageKey string) error {
	props := NormalizeProperties(structure.DocumentNode.Properties)
	if storageKey != "" {
		props["s3_key"] = storageKey
	}

	_, err := m.store.ExecuteQuery(ctx,
		`CREATE (d:Invoice $properties) SET d.id = $document_id`,
		map[string]interface{}{
			"properties":  props,
			"document_id": documentID,
		})
	if err != nil {
		return errors.Wrap(err, "failed to create invoice node")
	}
	metrics.GraphNodesCreated.WithLabelValues("Invoice").Inc()

	for idx, entity := range structure.Entities {
		label := SanitizeIdentifier(entity.Label)
		cypher := fmt.Sprintf(`MATCH (d:Invoice {id: $document_id})
CREATE (e:%s $properties)
CREATE (d)-[:CONTAINS]->(e)
SET e.node_id = $node_id`, label)

		_, err := m.store.ExecuteQuery(ctx, cypher, map[string]interface{}{
			"document_id": documentID,
			"properties":  NormalizeProperties(entity.Properties),
			"node_id":     fmt.Sprintf("node_%d", idx),
		})
		if err != nil {
			return errors.Wrapf(err, "failed to create entity node %d", idx)
		}
		metrics.GraphNodesCreated.WithLabelValues(label).Inc()
		metrics.GraphEdgesCreated.WithLabelValues("CONTAINS").Inc()
	}

	for _, rel := range structure.Relationships {
		relType := SanitizeRelationshipType(rel.Type)
		cypher := fmt.Sprintf(`MATCH (d:Invoice {id: $document_id})
MATCH (source {node_id: $from_id})<-[:CONTAINS]-(d)
MATCH (target {node_id: $to_id})<-[:CONTAINS]-(d)
CREATE (source)-[r:%s]->(target)
SET r = $properties`, relType)

		properties := rel.Properties
		if properties == nil {
			properties = map[string]interface{}{}
		}

		_, err := m.store.ExecuteQuery(ctx, cypher, map[string]interface{}{
			"document_id": documentID,
			"from_id":     fmt.Sprintf("node_%d", rel.FromNode),
			"to_id":       fmt.Sprintf("node_%d", rel.ToNode),
			"properties":  properties,
		})
		if err != nil {
			return errors.Wrapf(err, "failed to create %s relationship node_%d -> node_%d", relType, rel.FromNode, rel.ToNode)
		}
		metrics.GraphEdgesCreated.WithLabelValues(relType).Inc()
	}

	return nil
}
