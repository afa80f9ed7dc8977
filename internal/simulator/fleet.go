package simulator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kilianp07/fleetcore/core/model"
)

// Dialer opens one broker connection for the named carrier.
type Dialer func(carrier string) (Client, error)

// StartPose returns where c is placed when the simulation starts: its
// configured pose, or the pose of its parking station when none is set.
func StartPose(c model.Carrier, stations []model.Station) model.Pose {
	if c.Pose != (model.Pose{}) || c.ParkingStation == "" {
		return c.Pose
	}
	for _, st := range stations {
		if st.Name == c.ParkingStation && st.Fleet == c.Fleet {
			return st.Pose
		}
	}
	return c.Pose
}

// RunFleet runs every carrier on its own connection until ctx is done.
func RunFleet(ctx context.Context, carriers []*Carrier, dial Dialer) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, c := range carriers {
		cli, err := dial(c.Name)
		if err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("%s: connect: %w", c.Name, err))
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(c *Carrier, cli Client) {
			defer wg.Done()
			defer cli.Disconnect(250)
			if err := c.Run(ctx, cli); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", c.Name, err))
				mu.Unlock()
			}
		}(c, cli)
	}
	wg.Wait()
	return errors.Join(errs...)
}
