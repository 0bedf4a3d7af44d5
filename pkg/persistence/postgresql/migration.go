package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Definitions are stored as whole documents; status and timestamps are
			-- lifted out for filtering and ordering.
			CREATE TABLE workflow_definitions (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('draft', 'published', 'archived')),
				document JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_definitions_status ON workflow_definitions(status);
			CREATE INDEX idx_workflow_definitions_created_at ON workflow_definitions(created_at);
		`,
		2: `
			CREATE TABLE workflow_instances (
				id VARCHAR(255) PRIMARY KEY,
				definition_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('active', 'completed', 'terminated')),
				current_step_id VARCHAR(255) NOT NULL,
				data JSONB NOT NULL DEFAULT '{}',
				step_results JSONB NOT NULL DEFAULT '{}',
				history JSONB NOT NULL DEFAULT '[]',
				not_before TIMESTAMP WITH TIME ZONE,
				version BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				terminated_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflow_instances_definition_id ON workflow_instances(definition_id);
			CREATE INDEX idx_workflow_instances_status ON workflow_instances(status);
		`,
	}
}
