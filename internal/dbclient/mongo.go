package dbclient

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"arcsync/internal/domain"
)

// mongoConnector implements Connector for MongoDB.
type mongoConnector struct {
	client *mongo.Client
	dbName string

	mu      sync.Mutex
	cursor  *mongo.Cursor
	fetched int
}

// buildMongoURI returns the connection string for conn. A Host that is
// already a mongodb:// or mongodb+srv:// URI is used as is, with Atlas
// password placeholders filled in.
func buildMongoURI(conn domain.DatabaseConnection, password string) string {
	if strings.HasPrefix(conn.Host, "mongodb+srv://") || strings.HasPrefix(conn.Host, "mongodb://") {
		uri := conn.Host
		if password != "" {
			uri = strings.ReplaceAll(uri, "<password>", url.QueryEscape(password))
			uri = strings.ReplaceAll(uri, "<db_password>", url.QueryEscape(password))
		}
		return uri
	}

	port := conn.Port
	if port == 0 {
		port = domain.DatabaseDriverMongoDB.DefaultPort()
	}
	u := &url.URL{
		Scheme: "mongodb",
		Host:   net.JoinHostPort(conn.Host, strconv.Itoa(port)),
	}
	if conn.Username != "" {
		u.User = url.UserPassword(conn.Username, password)
	}
	return u.String()
}

// mongoDatabaseName picks the database from the connection, falling back to
// the path of a full connection URI.
func mongoDatabaseName(conn domain.DatabaseConnection, uri string) string {
	if conn.Database != "" {
		return conn.Database
	}
	if u, err := url.Parse(uri); err == nil {
		if name := strings.Trim(u.Path, "/"); name != "" {
			return name
		}
	}
	return ""
}

func newMongoConnector(conn domain.DatabaseConnection, password string) (*mongoConnector, error) {
	uri := buildMongoURI(conn, password)
	dbName := mongoDatabaseName(conn, uri)
	if dbName == "" {
		return nil, fmt.Errorf("mongodb: no database in connection or URI")
	}

	slog.Debug("connecting to mongodb", "host", redactURI(uri), "database", dbName)

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	return &mongoConnector{client: client, dbName: dbName}, nil
}

// redactURI strips credentials for logging.
func redactURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "<unparseable uri>"
	}
	return u.Redacted()
}

func (m *mongoConnector) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return m.client.Ping(ctx, nil)
}

func (m *mongoConnector) ReadTable(ctx context.Context, collection string, fetchSize int) (*QueryPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeCursorLocked(ctx)

	if fetchSize <= 0 {
		fetchSize = 500
	}

	coll := m.client.Database(m.dbName).Collection(collection)
	opts := options.Find().SetBatchSize(int32(fetchSize)).SetSort(bson.D{{Key: "_id", Value: 1}})

	cursor, err := coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}

	slog.Debug("mongodb cursor opened", "collection", collection, "batch", fetchSize)

	m.cursor = cursor
	m.fetched = 0
	return m.fetchBatchLocked(ctx, fetchSize)
}

func (m *mongoConnector) FetchMore(ctx context.Context, fetchSize int) (*QueryPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cursor == nil {
		return nil, fmt.Errorf("no active cursor, read a collection first")
	}
	if fetchSize <= 0 {
		fetchSize = 500
	}
	return m.fetchBatchLocked(ctx, fetchSize)
}

func (m *mongoConnector) fetchBatchLocked(ctx context.Context, fetchSize int) (*QueryPage, error) {
	var docs []bson.D
	for i := 0; i < fetchSize; i++ {
		if !m.cursor.Next(ctx) {
			break
		}
		var doc bson.D
		if err := m.cursor.Decode(&doc); err != nil {
			m.closeCursorLocked(ctx)
			return nil, fmt.Errorf("decode: %w", err)
		}
		docs = append(docs, doc)
	}

	// Check if cursor stopped due to an error (not just end of results)
	if err := m.cursor.Err(); err != nil {
		m.closeCursorLocked(ctx)
		return nil, fmt.Errorf("cursor: %w", err)
	}

	m.fetched += len(docs)

	// Documents are schemaless; the page columns are the union of keys.
	colSet := map[string]bool{}
	var columns []string
	for _, doc := range docs {
		for _, elem := range doc {
			if !colSet[elem.Key] {
				colSet[elem.Key] = true
				columns = append(columns, elem.Key)
			}
		}
	}
	// _id first, then alphabetical
	sort.SliceStable(columns, func(i, j int) bool {
		if columns[i] == "_id" {
			return true
		}
		if columns[j] == "_id" {
			return false
		}
		return columns[i] < columns[j]
	})

	rows := make([][]any, 0, len(docs))
	for _, doc := range docs {
		row := make([]any, len(columns))
		docMap := make(map[string]any, len(doc))
		for _, elem := range doc {
			docMap[elem.Key] = elem.Value
		}
		for j, col := range columns {
			if v, ok := docMap[col]; ok {
				row[j] = formatMongoValue(v)
			}
		}
		rows = append(rows, row)
	}

	hasMore := len(docs) == fetchSize
	if !hasMore {
		m.closeCursorLocked(ctx)
	}

	return &QueryPage{
		Columns:      columns,
		Rows:         rows,
		TotalFetched: m.fetched,
		HasMore:      hasMore,
	}, nil
}

// formatMongoValue converts BSON values into the plain Go values the mapper
// understands. Arrays and sub-documents stay structured so coordinate
// arrays and GeoJSON objects survive.
func formatMongoValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case bson.ObjectID:
		return val.Hex()
	case bson.DateTime:
		return val.Time().UTC().Format(time.RFC3339)
	case bson.Decimal128:
		return val.String()
	case bson.A:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = formatMongoValue(e)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = formatMongoValue(e.Value)
		}
		return out
	case bson.M:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = formatMongoValue(e)
		}
		return out
	case int32:
		return int64(val)
	default:
		return val
	}
}

func (m *mongoConnector) Close() error {
	m.mu.Lock()
	m.closeCursorLocked(context.Background())
	m.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *mongoConnector) closeCursorLocked(ctx context.Context) {
	if m.cursor != nil {
		m.cursor.Close(ctx)
		m.cursor = nil
	}
}
