package main

import (
	"context"

	rotera "github.com/mfagerlund/Rotera-sub014"

	"github.com/joho/godotenv"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	genericservice "go.viam.com/rdk/services/generic"
)

func main() {
	err := realMain()
	if err != nil {
		panic(err)
	}
}

func realMain() error {
	ctx := context.Background()
	logger := logging.NewLogger("cli")

	if err := godotenv.Load(); err != nil {
		logger.Debugf("no .env file loaded: %v", err)
	}

	deps := resource.Dependencies{}
	// can load these from a remote machine if you need

	cfg := rotera.Config{
		SigmaPx:            1.0,
		LockTolerance:      0.001,
		MaxFuncEvaluations: 50000,
	}
	if _, _, err := cfg.Validate(""); err != nil {
		return err
	}

	thing, err := rotera.NewSceneAdjuster(ctx, deps, genericservice.Named("adjuster"), &cfg, logger)
	if err != nil {
		return err
	}
	defer thing.Close(ctx)

	// A small synthetic survey: one camera at the origin looking down +Z,
	// three points with exact observations, one of them nudged off its true
	// position and pulled back by refinement.
	cmds := []map[string]interface{}{
		{
			"command": "add-viewpoint", "id": "cam1",
			"intrinsics": map[string]interface{}{"fx": 1000.0, "fy": 1000.0, "ppx": 512.0, "ppy": 384.0},
			"pose": map[string]interface{}{
				"translation": map[string]interface{}{"x": 0.0, "y": 0.0, "z": 0.0},
				"orientation": map[string]interface{}{"Real": 1.0, "Imag": 0.0, "Jmag": 0.0, "Kmag": 0.0},
			},
		},
		{"command": "add-point", "id": "a", "position": map[string]interface{}{"x": -1.0, "y": 0.0, "z": 10.0}},
		{"command": "add-point", "id": "b", "position": map[string]interface{}{"x": 1.0, "y": 0.0, "z": 10.0}},
		{"command": "add-point", "id": "c", "position": map[string]interface{}{"x": 0.3, "y": 0.4, "z": 10.2}},
		{"command": "add-observation", "point": "a", "viewpoint": "cam1", "u": 412.0, "v": 384.0},
		{"command": "add-observation", "point": "b", "viewpoint": "cam1", "u": 612.0, "v": 384.0},
		{"command": "add-observation", "point": "c", "viewpoint": "cam1", "u": 512.0, "v": 384.0},
		{"command": "lock-point", "id": "a", "tolerance": 0.001},
		{"command": "lock-point", "id": "b", "tolerance": 0.001},
		{"command": "add-line-constraint", "a": "a", "b": "b", "c": "c"},
	}
	for _, cmd := range cmds {
		if _, err := thing.DoCommand(ctx, cmd); err != nil {
			return err
		}
	}

	resp, err := thing.DoCommand(ctx, map[string]interface{}{"command": "evaluate"})
	if err != nil {
		return err
	}
	logger.Infof("initial cost: %v over %v residuals", resp["cost"], resp["count"])

	resp, err = thing.DoCommand(ctx, map[string]interface{}{"command": "refine"})
	if err != nil {
		return err
	}
	logger.Infof("refined cost: %v", resp["cost"])
	logger.Infof("refined points: %v", resp["points"])

	resp, err = thing.DoCommand(ctx, map[string]interface{}{"command": "get-projections", "viewpoint": "cam1"})
	if err != nil {
		return err
	}
	logger.Infof("projections: %v", resp["projections"])

	return nil
}
