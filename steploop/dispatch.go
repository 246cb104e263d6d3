package steploop

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/anxuanzi/vera-go/action"
	"github.com/anxuanzi/vera-go/backend"
	"github.com/anxuanzi/vera-go/runtime"
	"github.com/anxuanzi/vera-go/snapshot"
)

// dispatch executes one parsed action against the runtime's backend. CLICK
// and TYPE resolve an element id through snap; the coordinate actions bypass
// the snapshot entirely, matching spec.md §6's grammar (CLICK_XY/CLICK_RECT
// exist precisely so the vision fallback never needs an id).
func (l *Loop) dispatch(ctx context.Context, snap *snapshot.Snapshot, act action.Action) error {
	be := l.Runtime.Backend()
	if be == nil {
		return backend.ErrNilBackend()
	}

	switch act.Kind {
	case action.Click:
		el, ok := snap.ByID(act.ElementID)
		if !ok {
			return &runtime.ElementNotFound{ID: act.ElementID}
		}
		x, y := center(el.BBox)
		return be.MouseClick(ctx, x, y, backend.MouseButtonLeft, 1)

	case action.Type:
		el, ok := snap.ByID(act.ElementID)
		if !ok {
			return &runtime.ElementNotFound{ID: act.ElementID}
		}
		x, y := center(el.BBox)
		if err := be.MouseClick(ctx, x, y, backend.MouseButtonLeft, 1); err != nil {
			return err
		}
		return be.TypeText(ctx, act.Text)

	case action.Press:
		return be.KeyPress(ctx, act.Key)

	case action.ClickXY:
		return be.MouseClick(ctx, float64(act.X), float64(act.Y), backend.MouseButtonLeft, 1)

	case action.ClickRect:
		x := float64(act.X) + float64(act.W)/2
		y := float64(act.Y) + float64(act.H)/2
		return be.MouseClick(ctx, x, y, backend.MouseButtonLeft, 1)

	case action.Finish:
		return nil

	default:
		return fmt.Errorf("steploop: unhandled action kind %v", act.Kind)
	}
}

// dispatchVision executes a coordinate-only action produced by the vision
// fallback, which never has a snapshot element id to resolve against.
func (l *Loop) dispatchVision(ctx context.Context, act action.Action) error {
	be := l.Runtime.Backend()
	if be == nil {
		return backend.ErrNilBackend()
	}

	switch act.Kind {
	case action.ClickXY:
		return be.MouseClick(ctx, float64(act.X), float64(act.Y), backend.MouseButtonLeft, 1)
	case action.ClickRect:
		x := float64(act.X) + float64(act.W)/2
		y := float64(act.Y) + float64(act.H)/2
		return be.MouseClick(ctx, x, y, backend.MouseButtonLeft, 1)
	case action.Press:
		return be.KeyPress(ctx, act.Key)
	default:
		return fmt.Errorf("steploop: vision fallback produced non-coordinate action %v", act.Kind)
	}
}

func center(b snapshot.BoundingBox) (float64, float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

func base64Std(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
