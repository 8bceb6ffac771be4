package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dgallion1/notetree/internal/blobstore"
	"github.com/dgallion1/notetree/internal/doctree"
)

// subtreeSQL lists a node and its descendants, parents before children.
const subtreeSQL = `
WITH RECURSIVE sub(node_id, depth) AS (
	SELECT node_id, 0 FROM nodes WHERE node_id = ?
	UNION ALL
	SELECT n.node_id, sub.depth + 1 FROM nodes n JOIN sub ON n.parent_id = sub.node_id
)
SELECT n.node_id, COALESCE(n.parent_id, ''), n.title, COALESCE(n.blob_ref, ''), sub.depth
FROM sub JOIN nodes n ON n.node_id = sub.node_id
ORDER BY sub.depth`

type subtreeEntry struct {
	id, parentID, title, blobRef string
	depth                        int
}

func loadSubtree(ctx context.Context, q querier, id string) ([]subtreeEntry, error) {
	rows, err := q.QueryContext(ctx, subtreeSQL, id)
	if err != nil {
		return nil, fmt.Errorf("load subtree: %w", err)
	}
	defer rows.Close()
	var out []subtreeEntry
	for rows.Next() {
		var e subtreeEntry
		if err := rows.Scan(&e.id, &e.parentID, &e.title, &e.blobRef, &e.depth); err != nil {
			return nil, fmt.Errorf("scan subtree: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// rewritePaths recomputes folder_path below root, whose own path is rootPath.
func rewritePaths(ctx context.Context, tx *sql.Tx, sub []subtreeEntry, rootPath string) error {
	if len(sub) == 0 {
		return nil
	}
	paths := map[string]string{sub[0].id: rootPath}
	for _, e := range sub[1:] {
		folderPath := paths[e.parentID]
		paths[e.id] = doctree.JoinPath(folderPath, e.title)
		if _, err := tx.ExecContext(ctx, "UPDATE nodes SET folder_path = ? WHERE node_id = ?", folderPath, e.id); err != nil {
			return fmt.Errorf("rewrite path of %s: %w", e.id, err)
		}
	}
	return nil
}

// Rename changes a node's title. Sibling titles stay unique; a folder's
// descendants get their folder paths rewritten in the same transaction.
func (s *Store) Rename(ctx context.Context, owner, id, title string) (*doctree.Node, error) {
	const op = "rename"
	if err := checkOwner(op, owner); err != nil {
		return nil, err
	}
	title, err := doctree.NormalizeTitle(title)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var node *doctree.Node
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		r, err := lookup(ctx, tx, op, owner, id)
		if err != nil {
			return err
		}
		node = r.node
		if node.Title == title {
			return nil
		}
		if err := checkSibling(ctx, tx, op, owner, node.Category, node.ParentID, title, id); err != nil {
			return err
		}
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, "UPDATE nodes SET title = ?, updated_at = ? WHERE node_id = ?",
			title, now.UnixNano(), id); err != nil {
			return mapConstraint(op, err)
		}
		node.Title = title
		node.UpdatedAt = now
		if !node.IsFolder() {
			return nil
		}
		sub, err := loadSubtree(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return rewritePaths(ctx, tx, sub, node.Path())
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("node renamed", "id", id, "path", node.Path())
	return node, nil
}

// Move re-parents a node inside its category. An empty parentID moves it to
// the category root. A folder cannot move into itself or a descendant.
func (s *Store) Move(ctx context.Context, owner, id, parentID string) (*doctree.Node, error) {
	const op = "move"
	if err := checkOwner(op, owner); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var node *doctree.Node
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		r, err := lookup(ctx, tx, op, owner, id)
		if err != nil {
			return err
		}
		node = r.node
		if node.ParentID == parentID {
			return nil
		}
		if parentID == id {
			return doctree.Validation(op, "cannot move %q into itself", node.Title)
		}
		parent, err := resolveParent(ctx, tx, op, owner, node.Category, parentID)
		if err != nil {
			return err
		}

		sub, err := loadSubtree(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		for _, e := range sub {
			if e.id == parentID {
				return doctree.Validation(op, "cannot move %q into its own descendant", node.Title)
			}
		}
		if err := checkSibling(ctx, tx, op, owner, node.Category, parentID, node.Title, id); err != nil {
			return err
		}

		node.ParentID = ""
		node.FolderPath = ""
		if parent != nil {
			node.ParentID = parent.ID
			node.FolderPath = parent.Path()
		}
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			"UPDATE nodes SET parent_id = ?, folder_path = ?, updated_at = ? WHERE node_id = ?",
			nullable(node.ParentID), node.FolderPath, now.UnixNano(), id); err != nil {
			return mapConstraint(op, err)
		}
		node.UpdatedAt = now
		return rewritePaths(ctx, tx, sub, node.Path())
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("node moved", "id", id, "path", node.Path())
	return node, nil
}

// Delete removes a node and, for folders, every descendant. It returns the
// number of nodes removed. Blobs no longer referenced are removed after the
// transaction commits.
func (s *Store) Delete(ctx context.Context, owner, id string) (int, error) {
	const op = "delete"
	if err := checkOwner(op, owner); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var sub []subtreeEntry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := lookup(ctx, tx, op, owner, id); err != nil {
			return err
		}
		var err error
		sub, err = loadSubtree(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		// Children go first so no statement leaves a dangling parent.
		for i := len(sub) - 1; i >= 0; i-- {
			if _, err := tx.ExecContext(ctx, "DELETE FROM nodes WHERE node_id = ?", sub[i].id); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, e := range sub {
		if e.blobRef == "" {
			continue
		}
		if err := s.releaseBlob(ctx, blobstore.Ref(e.blobRef)); err != nil {
			// The sweeper retries orphans later.
			s.logger.Warn("blob cleanup failed", "ref", e.blobRef, "error", err)
		}
	}
	s.logger.Info("node deleted", "id", id, "removed", len(sub))
	return len(sub), nil
}

// releaseBlob removes ref unless another node still points at it.
func (s *Store) releaseBlob(ctx context.Context, ref blobstore.Ref) error {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM nodes WHERE blob_ref = ?", string(ref)).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	return s.blobs.Remove(ref)
}
