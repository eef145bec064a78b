package db

import "fmt"

// schemaTemplate contains the database schema initialization SQL.
// The single %d placeholder is the embedding dimension for the insight
// HNSW index, which must match the configured embedding model.
const schemaTemplate = `
    -- ==========================================================================
    -- MEMORY TABLE (unprocessed knowledge records, written by the client app)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS memory SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS type ON memory TYPE string;
    DEFINE FIELD IF NOT EXISTS content ON memory TYPE string;
    DEFINE FIELD IF NOT EXISTS project ON memory TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS status ON memory TYPE string DEFAULT "pending";
    DEFINE FIELD IF NOT EXISTS attempts ON memory TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS created ON memory TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated ON memory TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS memory_status ON memory FIELDS status;
    DEFINE INDEX IF NOT EXISTS memory_type ON memory FIELDS type;

    -- ==========================================================================
    -- INSIGHT TABLE (deduplicated conclusions derived from memories)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS insight SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS type ON insight TYPE string;
    DEFINE FIELD IF NOT EXISTS category ON insight TYPE string;
    DEFINE FIELD IF NOT EXISTS subcategory ON insight TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS confidence ON insight TYPE float DEFAULT 0.5;
    DEFINE FIELD IF NOT EXISTS relevance ON insight TYPE float DEFAULT 1.0;
    DEFINE FIELD IF NOT EXISTS impact ON insight TYPE float DEFAULT 0.5;
    DEFINE FIELD IF NOT EXISTS content ON insight TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS signature ON insight TYPE string;
    DEFINE FIELD IF NOT EXISTS source ON insight TYPE string DEFAULT "memory";
    -- TODO: Use set<string> when Go SDK supports CBOR tag 56 (v3.0 set type)
    DEFINE FIELD IF NOT EXISTS entities ON insight TYPE array<string>;
    DEFINE FIELD IF NOT EXISTS technologies ON insight TYPE array<string>;
    DEFINE FIELD IF NOT EXISTS related_ids ON insight TYPE array<string>;
    DEFINE FIELD IF NOT EXISTS supersedes_ids ON insight TYPE array<string>;
    DEFINE FIELD IF NOT EXISTS contradicts_ids ON insight TYPE array<string>;
    DEFINE FIELD IF NOT EXISTS memory_id ON insight TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS validation_status ON insight TYPE string DEFAULT "pending";
    DEFINE FIELD IF NOT EXISTS archived ON insight TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS embedding ON insight TYPE option<array<float>>;
    DEFINE FIELD IF NOT EXISTS created ON insight TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated ON insight TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS insight_signature ON insight FIELDS signature;
    DEFINE INDEX IF NOT EXISTS insight_category ON insight FIELDS category;
    DEFINE INDEX IF NOT EXISTS insight_technologies ON insight FIELDS technologies;
    DEFINE INDEX IF NOT EXISTS insight_embedding ON insight FIELDS embedding HNSW DIMENSION %d DIST COSINE TYPE F32;
    DEFINE ANALYZER IF NOT EXISTS insight_analyzer TOKENIZERS class FILTERS lowercase, ascii, snowball(english);
    DEFINE INDEX IF NOT EXISTS insight_content_ft ON insight FIELDS content FULLTEXT ANALYZER insight_analyzer BM25;

    -- ==========================================================================
    -- DEDUP ENTRY TABLE (store-backed rolling window index)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS dedup_entry SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS signature ON dedup_entry TYPE string;
    DEFINE FIELD IF NOT EXISTS insight_id ON dedup_entry TYPE string;
    DEFINE FIELD IF NOT EXISTS confidence ON dedup_entry TYPE float;
    DEFINE FIELD IF NOT EXISTS expires_at ON dedup_entry TYPE datetime;

    DEFINE INDEX IF NOT EXISTS dedup_signature ON dedup_entry FIELDS signature UNIQUE;
    DEFINE INDEX IF NOT EXISTS dedup_expires ON dedup_entry FIELDS expires_at;

    -- ==========================================================================
    -- PROCESSING QUEUE TABLE (durable backlog for the batch driver)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS processing_queue SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS memory_id ON processing_queue TYPE string;
    DEFINE FIELD IF NOT EXISTS task_type ON processing_queue TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON processing_queue TYPE string DEFAULT "pending";
    DEFINE FIELD IF NOT EXISTS attempts ON processing_queue TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS created ON processing_queue TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated ON processing_queue TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS queue_status ON processing_queue FIELDS status;
    DEFINE INDEX IF NOT EXISTS queue_memory ON processing_queue FIELDS memory_id;

    -- ==========================================================================
    -- SETTING TABLE (key/value runtime configuration, TTL-cached by readers)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS setting SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS key ON setting TYPE string;
    DEFINE FIELD IF NOT EXISTS value ON setting TYPE string;
    DEFINE FIELD IF NOT EXISTS category ON setting TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS updated ON setting TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS setting_key ON setting FIELDS key UNIQUE;

    -- ==========================================================================
    -- ANALYTICS SNAPSHOT TABLE (periodic aggregates from the analytics job)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS analytics_snapshot SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS insights_total ON analytics_snapshot TYPE int;
    DEFINE FIELD IF NOT EXISTS insights_by_type ON analytics_snapshot TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS memories_by_status ON analytics_snapshot TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS taken_at ON analytics_snapshot TYPE datetime DEFAULT time::now();
`

// SchemaSQL renders the schema for the given embedding dimension.
func SchemaSQL(embedDim int) string {
	return fmt.Sprintf(schemaTemplate, embedDim)
}
