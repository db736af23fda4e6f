package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

const (
	cypherFollowers = `MATCH (f:User)-[:FOLLOWS]->(u:User {id: $id}) RETURN f.id AS id`
	cypherFollowing = `MATCH (u:User {id: $id})-[:FOLLOWS]->(f:User) RETURN f.id AS id`
	cypherFollow    = `MERGE (a:User {id: $from}) MERGE (b:User {id: $to}) MERGE (a)-[:FOLLOWS]->(b)`
	cypherUnfollow  = `MATCH (:User {id: $from})-[r:FOLLOWS]->(:User {id: $to}) DELETE r`
)

// Neo4jGraph 以 (:User)-[:FOLLOWS]->(:User) 存储关注关系
type Neo4jGraph struct {
	driver   neo4j.DriverWithContext
	database string
}

func NewNeo4jGraph(driver neo4j.DriverWithContext, database string) *Neo4jGraph {
	return &Neo4jGraph{driver: driver, database: database}
}

// OpenNeo4j 建立驱动并校验连通性
func OpenNeo4j(ctx context.Context, uri, user, password, database string) (*Neo4jGraph, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j: %w", err)
	}
	return NewNeo4jGraph(driver, database), nil
}

func (g *Neo4jGraph) Close(ctx context.Context) error { return g.driver.Close(ctx) }

func (g *Neo4jGraph) FollowersOf(ctx context.Context, userID int64) ([]int64, error) {
	return g.queryIDs(ctx, cypherFollowers, userID)
}

func (g *Neo4jGraph) FollowingOf(ctx context.Context, userID int64) ([]int64, error) {
	return g.queryIDs(ctx, cypherFollowing, userID)
}

func (g *Neo4jGraph) Follow(ctx context.Context, followerID, followeeID int64) error {
	return g.write(ctx, cypherFollow, followerID, followeeID)
}

func (g *Neo4jGraph) Unfollow(ctx context.Context, followerID, followeeID int64) error {
	return g.write(ctx, cypherUnfollow, followerID, followeeID)
}

func (g *Neo4jGraph) queryIDs(ctx context.Context, cypher string, userID int64) ([]int64, error) {
	res, err := neo4j.ExecuteQuery(ctx, g.driver, cypher,
		map[string]any{"id": userID},
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(g.database),
		neo4j.ExecuteQueryWithReadersRouting(),
	)
	if err != nil {
		return nil, fmt.Errorf("neo4j query: %w", err)
	}
	return idsFromRecords(res.Records, "id")
}

func (g *Neo4jGraph) write(ctx context.Context, cypher string, from, to int64) error {
	_, err := neo4j.ExecuteQuery(ctx, g.driver, cypher,
		map[string]any{"from": from, "to": to},
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(g.database),
	)
	if err != nil {
		return fmt.Errorf("neo4j write: %w", err)
	}
	return nil
}

func idsFromRecords(records []*neo4j.Record, key string) ([]int64, error) {
	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		v, ok := rec.Get(key)
		if !ok {
			return nil, fmt.Errorf("record missing %q", key)
		}
		id, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("record %q: unexpected type %T", key, v)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
