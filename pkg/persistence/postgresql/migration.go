package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Workflow definitions. The graph lives in definition; stats are owned by RecordExecution.
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				category VARCHAR(50) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('draft', 'active', 'paused', 'archived')),
				version INTEGER NOT NULL DEFAULT 1,
				owner VARCHAR(255),
				definition JSONB NOT NULL,
				stats JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflows_category ON workflows(category);
			CREATE INDEX idx_workflows_status ON workflows(status);
			CREATE INDEX idx_workflows_created_at ON workflows(created_at);
			CREATE INDEX idx_workflows_deleted_at ON workflows(deleted_at);
		`,
		2: `
			-- Executions have no foreign key: history outlives the workflow.
			CREATE TABLE workflow_executions (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				data JSONB NOT NULL
			);

			CREATE INDEX idx_workflow_executions_workflow_id ON workflow_executions(workflow_id);
			CREATE INDEX idx_workflow_executions_status ON workflow_executions(status);
			CREATE INDEX idx_workflow_executions_started_at ON workflow_executions(started_at);
		`,
	}
}
