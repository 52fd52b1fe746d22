package db

// PostgreSQL migrations for the result history

var postgresMigrations = []Migration{
	{
		Version: 1,
		Name:    "create_sentimint_results_table",
		Up: `
			CREATE TABLE IF NOT EXISTS sentimint_results (
				id TEXT PRIMARY KEY,
				entity TEXT NOT NULL,
				entity_key TEXT NOT NULL,
				score DOUBLE PRECISION NOT NULL DEFAULT 0,
				data TEXT NOT NULL,
				created_at TIMESTAMPTZ DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_sentimint_results_created_at ON sentimint_results(created_at);
			CREATE INDEX IF NOT EXISTS idx_sentimint_results_entity_key ON sentimint_results(entity_key, created_at DESC);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_sentimint_results_entity_key;
			DROP INDEX IF EXISTS idx_sentimint_results_created_at;
			DROP TABLE IF EXISTS sentimint_results;
		`,
	},
}
