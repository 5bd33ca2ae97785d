// Package harvest holds the domain model shared by the discovery pipeline and
// the processing orchestrator: the immutable scan context, resource
// normalization and filtering, phases, errors, archive naming, and the
// collaborator interfaces the rest of the harvester depends on.
package harvest
