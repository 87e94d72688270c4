// -----------------------------------------------------------------------
// Cleanup - Workspace teardown, runs on every pipeline exit path
// -----------------------------------------------------------------------

package tools

import (
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/describo/internal/common"
)

// Cleaner removes per-job scratch state. The local docs copy survives: it
// backs the artifact endpoint and stands in when the gateway is down.
type Cleaner struct {
	logger        arbor.ILogger
	workspaceRoot string
}

// NewCleaner creates a cleaner rooted at the workspace
func NewCleaner(config *common.Config, logger arbor.ILogger) *Cleaner {
	return &Cleaner{
		logger:        logger,
		workspaceRoot: config.Workspace.Root,
	}
}

// Cleanup deletes the job's clone directory. Failure is logged, never
// propagated: the job's outcome was decided before cleanup ran.
func (c *Cleaner) Cleanup(jobID string) {
	repoDir := filepath.Join(c.workspaceRoot, "repos", jobID)
	if err := os.RemoveAll(repoDir); err != nil {
		c.logger.Warn().Err(err).Str("job_id", jobID).Str("dir", repoDir).Msg("Workspace cleanup failed")
		return
	}
	c.logger.Debug().Str("job_id", jobID).Msg("Workspace cleaned")
}

// RemoveDocs deletes the local docs artifact; called by the retention purge
// once a terminal job record is removed.
func (c *Cleaner) RemoveDocs(jobID string) {
	docsPath := filepath.Join(c.workspaceRoot, "docs", jobID)
	if err := os.Remove(docsPath); err != nil && !os.IsNotExist(err) {
		c.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to remove local artifact")
	}
}
