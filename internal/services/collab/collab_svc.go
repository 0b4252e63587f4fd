package collab

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"docshub/internal/services/permission"
	"docshub/internal/services/resource"
	"docshub/internal/services/version"
)

// Fields is a partial live edit staged for asynchronous persistence.
type Fields struct {
	Title   *string
	Content *string
}

// ICollabService is the persistence coordinator: it gates every durable
// write on editor authorization and decides when it becomes durable.
// Broadcast never waits on any of these calls.
type ICollabService interface {
	// Save stages fields into the live cache; the background flusher
	// makes them durable. Requires editor.
	Save(ctx context.Context, ref resource.Ref, userID string, fields Fields) error
	// ApplyCellChanges folds spreadsheet cell writes into the staged
	// grid. Requires editor.
	ApplyCellChanges(ctx context.Context, ref resource.Ref, userID string, changes []CellChange) error
	// Snapshot freezes the current (staged or durable) content as the
	// next version number. Requires editor.
	Snapshot(ctx context.Context, ref resource.Ref, userID, description string) (int, error)
	// Restore copies a past version's content back onto the resource,
	// snapshotting current state first so the restore is undoable.
	Restore(ctx context.Context, ref resource.Ref, userID string, number int) error
	// Purge drops staged state; called when the resource is deleted.
	Purge(ctx context.Context, ref resource.Ref) error
}

type collabService struct {
	stager  Stager
	resSvc  resource.IResourceService
	permSvc permission.IPermissionService
	verSvc  version.IVersionService
}

func NewCollabService(stager Stager, resSvc resource.IResourceService,
	permSvc permission.IPermissionService, verSvc version.IVersionService) ICollabService {
	return &collabService{stager: stager, resSvc: resSvc, permSvc: permSvc, verSvc: verSvc}
}

var ErrForbidden = permission.ErrForbidden

func (svc *collabService) Save(ctx context.Context, ref resource.Ref,
	userID string, fields Fields) error {

	res, err := svc.resSvc.Get(ctx, ref)
	if err != nil {
		return err
	}
	if err := svc.requireEditor(ctx, res, userID); err != nil {
		return err
	}

	staged := map[string]string{
		"leb": userID,
		"ua":  strconv.FormatInt(time.Now().Unix(), 10),
	}
	if fields.Title != nil {
		staged["title"] = *fields.Title
	}
	if fields.Content != nil {
		staged["content"] = *fields.Content
	}
	return svc.stager.Stage(ctx, ref, staged)
}

func (svc *collabService) ApplyCellChanges(ctx context.Context, ref resource.Ref,
	userID string, changes []CellChange) error {

	if len(changes) == 0 {
		return nil
	}
	res, err := svc.resSvc.Get(ctx, ref) // staged content overlaid
	if err != nil {
		return err
	}
	if err := svc.requireEditor(ctx, res, userID); err != nil {
		return err
	}

	updated, err := applyCellChanges(res.Content, changes)
	if err != nil {
		return err
	}
	return svc.stager.Stage(ctx, ref, map[string]string{
		"content": updated,
		"leb":     userID,
		"ua":      strconv.FormatInt(time.Now().Unix(), 10),
	})
}

func (svc *collabService) Snapshot(ctx context.Context, ref resource.Ref,
	userID, description string) (int, error) {

	res, err := svc.resSvc.Get(ctx, ref)
	if err != nil {
		return 0, err
	}
	if err := svc.requireEditor(ctx, res, userID); err != nil {
		return 0, err
	}
	return svc.verSvc.Create(ctx, ref, res.Content, userID, description)
}

func (svc *collabService) Restore(ctx context.Context, ref resource.Ref,
	userID string, number int) error {

	res, err := svc.resSvc.Get(ctx, ref)
	if err != nil {
		return err
	}
	if err := svc.requireEditor(ctx, res, userID); err != nil {
		return err
	}

	target, err := svc.verSvc.Get(ctx, ref, number)
	if err != nil {
		return err
	}

	// Snapshot current state first so the restore itself is undoable.
	if _, err := svc.verSvc.Create(ctx, ref, res.Content, userID,
		fmt.Sprintf("Restored to version %d", number)); err != nil {
		return err
	}

	// Drop staged edits before the direct write; a later flush of the
	// pre-restore cache would silently undo the restore.
	if err := svc.stager.Purge(ctx, ref); err != nil {
		return err
	}
	return svc.resSvc.Update(ctx, ref, resource.Fields{
		Content:      &target.Content,
		LastEditedBy: &userID,
	})
}

func (svc *collabService) Purge(ctx context.Context, ref resource.Ref) error {
	return svc.stager.Purge(ctx, ref)
}

func (svc *collabService) requireEditor(ctx context.Context,
	res *resource.ResourceDTO, userID string) error {

	ok, err := svc.permSvc.Authorize(ctx, res, userID, permission.RoleEditor)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}
