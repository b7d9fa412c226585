package graphstore

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v4/neo4j"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Neo4jStore wraps a Neo4j driver with an explicit connect/verify/close
// lifecycle. Each ExecuteQuery opens its own session, so the store is safe
// for concurrent use without additional locking.
type Neo4jStore struct {
	driver    neo4j.Driver
	uri       string
	connected bool
	logger    *logrus.Logger
}

// NewNeo4jStore creates a store for the given bolt URI. The connection is
// not verified until Connect is called.
func NewNeo4jStore(uri, username, password string, logger *logrus.Logger) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriver(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Neo4j driver")
	}

	return &Neo4jStore{
		driver: driver,
		uri:    uri,
		logger: logger,
	}, nil
}

// Connect verifies connectivity to the database. A failure is returned to
// the caller so startup can degrade graph features instead of aborting.
func (s *Neo4jStore) Connect(ctx context.Context) error {
	if err := s.driver.VerifyConnectivity(); err != nil {
		s.connected = false
		return errors.Wrapf(err, "failed to connect to Neo4j at %s", s.uri)
	}

	s.connected = true
	s.logger.WithField("uri", s.uri).Info("Connected to Neo4j")
	return nil
}

// Connected reports whether the last connectivity check succeeded.
func (s *Neo4jStore) Connected() bool {
	return s.connected
}

// ExecuteQuery runs a single Cypher statement in its own session and
// collects every record's bound variables.
func (s *Neo4jStore) ExecuteQuery(ctx context.Context, cypher string, params map[string]interface{}) ([]map[string]interface{}, error) {
	session := s.driver.NewSession(neo4j.SessionConfig{})
	defer session.Close()

	start := time.Now()

	result, err := session.Run(cypher, params)
	if err != nil {
		s.logger.WithError(err).WithField("cypher", cypher).Error("Cypher query failed")
		return nil, err
	}

	records := make([]map[string]interface{}, 0)
	for result.Next() {
		record := result.Record()
		row := make(map[string]interface{}, len(record.Keys))
		for i, key := range record.Keys {
			row[key] = record.Values[i]
		}
		records = append(records, row)
	}
	if err := result.Err(); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"duration": time.Since(start),
		"rows":     len(records),
	}).Debug("Cypher query executed")

	return records, nil
}

// Close releases the underlying driver.
func (s *Neo4jStore) Close() error {
	s.connected = false
	if s.driver != nil {
		return s.driver.Close()
	}
	return nil
}
