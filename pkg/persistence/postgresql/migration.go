package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Versioned graph definitions
			CREATE TABLE graph_versions (
				id UUID PRIMARY KEY,
				graph_id VARCHAR(255) NOT NULL,
				version VARCHAR(50) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('draft', 'published')),
				definition JSONB NOT NULL,
				pinned_outputs JSONB,
				owner VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				published_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_graph_versions_graph_id ON graph_versions(graph_id);
			CREATE INDEX idx_graph_versions_status ON graph_versions(status);
			CREATE UNIQUE INDEX idx_graph_versions_graph_version ON graph_versions(graph_id, version);
		`,
		2: `
			-- Durable run records
			CREATE TABLE runs (
				id UUID PRIMARY KEY,
				graph_version_id UUID NOT NULL REFERENCES graph_versions(id),
				status VARCHAR(50) NOT NULL,
				trigger_type VARCHAR(50) NOT NULL,
				trigger_input JSONB,
				trigger_context JSONB,
				triggered_by VARCHAR(255),
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE,
				duration_ms BIGINT,
				error_message TEXT,
				paused_at TIMESTAMP WITH TIME ZONE,
				waiting_node_id VARCHAR(255),
				pause_reason TEXT,
				resume_condition JSONB,
				retry_of UUID REFERENCES runs(id),
				retry_count INT NOT NULL DEFAULT 0,
				max_retries INT NOT NULL DEFAULT 3,
				cancelled_by VARCHAR(255),
				cancelled_at TIMESTAMP WITH TIME ZONE,
				cancel_reason TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_runs_graph_version_id ON runs(graph_version_id);
			CREATE INDEX idx_runs_status ON runs(status);
			CREATE INDEX idx_runs_triggered_by ON runs(triggered_by);
			CREATE INDEX idx_runs_started_at ON runs(started_at);
			CREATE INDEX idx_runs_retry_of ON runs(retry_of);
		`,
		3: `
			-- Per-node execution records
			CREATE TABLE node_runs (
				id UUID PRIMARY KEY,
				run_id UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
				node_id VARCHAR(255) NOT NULL,
				component_name VARCHAR(255),
				component_version VARCHAR(50),
				status VARCHAR(50) NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE,
				duration_ms BIGINT,
				error_message TEXT,
				error_stack TEXT,
				retry_count INT NOT NULL DEFAULT 0,
				waiting_for TEXT,
				waiting_since TIMESTAMP WITH TIME ZONE,
				metadata JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_node_runs_run_id ON node_runs(run_id);
			CREATE INDEX idx_node_runs_node_id ON node_runs(node_id);
			CREATE INDEX idx_node_runs_status ON node_runs(status);
			CREATE INDEX idx_node_runs_created_at ON node_runs(created_at);
		`,
	}
}
