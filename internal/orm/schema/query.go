package schema

// Query languages
const (
	LanguageJPQL = "jpql"
	LanguageSQL  = "sql"
)

// QueryMetaData describes a named query
type QueryMetaData struct {
	name         string
	definingType *Class
	resultType   *Class
	language     string
	query        string
	readOnly     bool
	hints        map[string]interface{}
	source       string
}

func newQueryMetaData(definingType *Class, name string) *QueryMetaData {
	return &QueryMetaData{
		name:         name,
		definingType: definingType,
		language:     LanguageJPQL,
	}
}

// Name returns the query name
func (q *QueryMetaData) Name() string { return q.name }

// DefiningType returns the type that declares the query, or nil
func (q *QueryMetaData) DefiningType() *Class { return q.definingType }

// ResultType returns the declared result type
func (q *QueryMetaData) ResultType() *Class { return q.resultType }

// SetResultType sets the result type
func (q *QueryMetaData) SetResultType(c *Class) { q.resultType = c }

// Language returns the query language
func (q *QueryMetaData) Language() string { return q.language }

// SetLanguage sets the query language
func (q *QueryMetaData) SetLanguage(lang string) { q.language = lang }

// QueryString returns the query text
func (q *QueryMetaData) QueryString() string { return q.query }

// SetQueryString sets the query text
func (q *QueryMetaData) SetQueryString(query string) { q.query = query }

// IsReadOnly reports whether the query only reads
func (q *QueryMetaData) IsReadOnly() bool { return q.readOnly }

// SetReadOnly sets the read-only flag
func (q *QueryMetaData) SetReadOnly(readOnly bool) { q.readOnly = readOnly }

// Source returns where the query was declared
func (q *QueryMetaData) Source() string { return q.source }

// SetSource records where the query was declared
func (q *QueryMetaData) SetSource(source string) { q.source = source }

// Hints returns a copy of the query hints
func (q *QueryMetaData) Hints() map[string]interface{} {
	hints := make(map[string]interface{}, len(q.hints))
	for k, v := range q.hints {
		hints[k] = v
	}
	return hints
}

// AddHint sets a query hint
func (q *QueryMetaData) AddHint(key string, value interface{}) {
	if q.hints == nil {
		q.hints = make(map[string]interface{})
	}
	q.hints[key] = value
}

func (q *QueryMetaData) String() string {
	if q.definingType == nil {
		return q.name
	}
	return q.definingType.Name + "." + q.name
}

type queryKey struct {
	definingType string
	name         string
}

func keyOf(definingType *Class, name string) queryKey {
	k := queryKey{name: name}
	if definingType != nil {
		k.definingType = definingType.Name
	}
	return k
}
