package storage

// IndexSpec declares one secondary index over a record field. Unique indexes
// reject a second record carrying the same value.
type IndexSpec struct {
	Name   string
	Field  string
	Unique bool
}

// CollectionSpec declares a named collection and its secondary indexes.
type CollectionSpec struct {
	Name    string
	Indexes []IndexSpec
}

// Schema maps collection names to their specs. It is plain data so the set of
// mirrored entities can grow without touching store logic.
type Schema map[string]CollectionSpec

// Index returns the named index spec, if declared.
func (s Schema) Index(collection, index string) (IndexSpec, bool) {
	spec, ok := s[collection]
	if !ok {
		return IndexSpec{}, false
	}
	for _, idx := range spec.Indexes {
		if idx.Name == index {
			return idx, true
		}
	}
	return IndexSpec{}, false
}

// DefaultSchema mirrors the server entities of the practice-management
// domain.
func DefaultSchema() Schema {
	specs := []CollectionSpec{
		{Name: "clientes", Indexes: []IndexSpec{
			{Name: "por_cpf", Field: "cpf", Unique: true},
			{Name: "por_nome", Field: "nome"},
			{Name: "por_email", Field: "email"},
		}},
		{Name: "processos", Indexes: []IndexSpec{
			{Name: "por_numero", Field: "numero", Unique: true},
			{Name: "por_cliente", Field: "cliente_id"},
			{Name: "por_status", Field: "status"},
		}},
		{Name: "documentos", Indexes: []IndexSpec{
			{Name: "por_processo", Field: "processo_id"},
			{Name: "por_tipo", Field: "tipo"},
		}},
		{Name: "leads", Indexes: []IndexSpec{
			{Name: "por_origem", Field: "origem"},
			{Name: "por_status", Field: "status"},
		}},
		{Name: "mensagens", Indexes: []IndexSpec{
			{Name: "por_cliente", Field: "cliente_id"},
			{Name: "por_campanha", Field: "campanha_id"},
		}},
		{Name: "agenda", Indexes: []IndexSpec{
			{Name: "por_processo", Field: "processo_id"},
			{Name: "por_data", Field: "data"},
		}},
		{Name: "financeiro", Indexes: []IndexSpec{
			{Name: "por_cliente", Field: "cliente_id"},
			{Name: "por_status", Field: "status"},
		}},
	}

	schema := make(Schema, len(specs))
	for _, spec := range specs {
		schema[spec.Name] = spec
	}
	return schema
}
