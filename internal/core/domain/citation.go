package domain

import "strings"

// Citation exposes only the catalog fields a user may see for a source.
type Citation struct {
	AssetName   string `json:"asset_name"`
	AssetType   string `json:"asset_type"`
	Description string `json:"description"`
	Table       string `json:"table"`
	Schema      string `json:"schema"`
}

var (
	assetNameKeys   = []string{"nome_asset", "asset_name", "name"}
	assetTypeKeys   = []string{"tipo_asset", "asset_type", "type"}
	descriptionKeys = []string{"descrizione", "descrizione_asset", "description"}
	tableKeys       = []string{"nome_tabella", "tabella_di_appartenenza", "table"}
	schemaKeys      = []string{"schema", "schema_di_appartenenza"}
)

// CitationFromChunk projects chunk metadata onto the citation fields. Keys are
// matched case-insensitively with spaces treated as underscores. The chunk text
// stands in for a missing description.
func CitationFromChunk(chunk Chunk) Citation {
	normalized := make(map[string]string, len(chunk.Metadata))
	for k, v := range chunk.Metadata {
		normalized[normalizeMetadataKey(k)] = strings.TrimSpace(v)
	}

	c := Citation{
		AssetName:   firstMetadataValue(normalized, assetNameKeys),
		AssetType:   firstMetadataValue(normalized, assetTypeKeys),
		Description: firstMetadataValue(normalized, descriptionKeys),
		Table:       firstMetadataValue(normalized, tableKeys),
		Schema:      firstMetadataValue(normalized, schemaKeys),
	}
	if c.Description == "" {
		c.Description = strings.TrimSpace(chunk.Text)
	}
	return c
}

// Fields returns the labelled fields in display order, skipping empty ones.
func (c Citation) Fields() [][2]string {
	all := [][2]string{
		{"Nome asset", c.AssetName},
		{"Tipo asset", c.AssetType},
		{"Descrizione", c.Description},
		{"Nome tabella", c.Table},
		{"Schema", c.Schema},
	}
	out := make([][2]string, 0, len(all))
	for _, f := range all {
		if f[1] != "" {
			out = append(out, f)
		}
	}
	return out
}

func normalizeMetadataKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	return strings.Join(strings.Fields(key), "_")
}

func firstMetadataValue(meta map[string]string, keys []string) string {
	for _, k := range keys {
		if v := meta[k]; v != "" {
			return v
		}
	}
	return ""
}
