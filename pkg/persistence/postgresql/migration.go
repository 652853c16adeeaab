package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE projects (
				code VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL DEFAULT '',
				archived BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE workflow_definitions (
				id UUID PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				version INT NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('draft', 'accepted', 'retired')),
				nodes JSONB NOT NULL,
				edges JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				accepted_at TIMESTAMP WITH TIME ZONE,
				UNIQUE (workflow_id, version)
			);

			CREATE INDEX idx_definitions_workflow_status ON workflow_definitions(workflow_id, status);

			CREATE TABLE documents (
				id UUID PRIMARY KEY,
				doc_type_id VARCHAR(255) NOT NULL,
				project_id VARCHAR(255) NOT NULL REFERENCES projects(code),
				parent_document_id UUID REFERENCES documents(id) ON DELETE RESTRICT,
				instance_key VARCHAR(255) NOT NULL DEFAULT '',
				lifecycle_state VARCHAR(50) NOT NULL CHECK (lifecycle_state IN ('generating', 'partial', 'complete', 'stale')),
				state_changed_at TIMESTAMP WITH TIME ZONE NOT NULL,
				is_latest BOOLEAN NOT NULL DEFAULT TRUE,
				row_version INT NOT NULL DEFAULT 1,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE UNIQUE INDEX idx_documents_latest
				ON documents(project_id, doc_type_id, instance_key)
				WHERE is_latest;
			CREATE INDEX idx_documents_type_state ON documents(doc_type_id, lifecycle_state);
			CREATE INDEX idx_documents_parent ON documents(parent_document_id);

			CREATE TABLE executions (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				definition_version INT NOT NULL,
				document_id UUID NOT NULL,
				document_type VARCHAR(255) NOT NULL,
				project_id VARCHAR(255) NOT NULL,
				user_id VARCHAR(255),
				current_node_id VARCHAR(255) NOT NULL,
				log JSONB NOT NULL DEFAULT '[]',
				retry_counts JSONB NOT NULL DEFAULT '{}',
				attempt_counts JSONB NOT NULL DEFAULT '{}',
				gate_outcome VARCHAR(255),
				terminal_outcome VARCHAR(50),
				context_state JSONB NOT NULL DEFAULT '{}',
				pending_input JSONB,
				row_version INT NOT NULL DEFAULT 1,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_executions_document ON executions(document_id);
			CREATE INDEX idx_executions_workflow ON executions(workflow_id);

			CREATE TABLE audit_records (
				id UUID PRIMARY KEY,
				project_id VARCHAR(255) NOT NULL,
				actor_user_id VARCHAR(255),
				action VARCHAR(50) NOT NULL CHECK (action IN ('CREATED', 'UPDATED', 'ARCHIVED', 'UNARCHIVED', 'DELETED', 'EDIT_BLOCKED_ARCHIVED')),
				reason TEXT NOT NULL DEFAULT '',
				metadata JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_audit_project_created ON audit_records(project_id, created_at);

			-- Audit records are immutable at every layer, including SQL.
			CREATE RULE audit_records_no_update AS ON UPDATE TO audit_records DO INSTEAD NOTHING;
			CREATE RULE audit_records_no_delete AS ON DELETE TO audit_records DO INSTEAD NOTHING;
		`,
	}
}
