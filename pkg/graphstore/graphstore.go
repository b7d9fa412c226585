package graphstore

import "context"

// Querier is the query surface the knowledge-graph engine depends on.
// Implementations run one Cypher statement per call and return the bound
// variables of each record as a map.
type Querier interface {
	ExecuteQuery(ctx context.Context, cypher string, params map[string]interface{}) ([]map[string]interface{}, error)
}
