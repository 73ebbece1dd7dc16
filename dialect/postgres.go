package dialect

import (
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"
)

// Postgres implements Grammar for PostgreSQL.
type Postgres struct{}

// QuoteIdentifier escapes a table or column name.
func (Postgres) QuoteIdentifier(name string) string {
	return pq.QuoteIdentifier(name)
}

// QuoteValue renders a scalar as a safe SQL literal.
func (Postgres) QuoteValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return pq.QuoteLiteral(val)
	case []byte:
		return pq.QuoteLiteral(string(val))
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return pq.QuoteLiteral(val.Format(time.RFC3339Nano))
	default:
		return pq.QuoteLiteral(fmt.Sprintf("%v", val))
	}
}

// Placeholder renders the nth bind placeholder ($1, $2, ...).
func (Postgres) Placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}
