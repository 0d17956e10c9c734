// Package domain defines the core entities of the errand marketplace: tasks,
// the claims helpers place on them, and the pending-claims summary. It holds
// the claim lifecycle rules (statuses, overdue check, validation) and has no
// dependencies on storage or transport.
package domain
