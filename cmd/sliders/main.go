// sliders prints the six head-pose slider coefficients for a rotation.
//
//	sliders -q 0,0.259,0,0.966
//	sliders -euler 0,30,0 -deg
//	sliders -euler 0.2,-0.1,0 -json
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/teslashibe/go-mocap/pkg/pose"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

type output struct {
	Quaternion [4]float64         `json:"quaternion"` // x, y, z, w
	Euler      [3]float64         `json:"euler"`      // pitch, yaw, roll (radians)
	Sliders    map[string]float64 `json:"sliders"`
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("sliders", flag.ContinueOnError)
	fs.SetOutput(out)
	quat := fs.String("q", "", "Quaternion x,y,z,w")
	euler := fs.String("euler", "", "Euler angles pitch,yaw,roll (radians unless -deg)")
	degrees := fs.Bool("deg", false, "Euler angles are in degrees")
	asJSON := fs.Bool("json", false, "Print JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var q pose.Quaternion
	switch {
	case *quat != "" && *euler != "":
		return errors.New("use either -q or -euler, not both")
	case *quat != "":
		v, err := parseFloats(*quat, 4)
		if err != nil {
			return fmt.Errorf("-q: %w", err)
		}
		q = pose.NewQuaternion(v[0], v[1], v[2], v[3])
	case *euler != "":
		v, err := parseFloats(*euler, 3)
		if err != nil {
			return fmt.Errorf("-euler: %w", err)
		}
		if *degrees {
			for i := range v {
				v[i] = pose.Radians(v[i])
			}
		}
		q = pose.FromEuler(v[0], v[1], v[2])
	default:
		fs.Usage()
		return errors.New("a rotation is required")
	}

	e := q.ToEuler()
	sliders := pose.RotationToSliders(q)

	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(output{
			Quaternion: [4]float64{q.X, q.Y, q.Z, q.W},
			Euler:      [3]float64{e.Pitch, e.Yaw, e.Roll},
			Sliders:    sliders.Map(),
		})
	}

	fmt.Fprintf(out, "🧭 rotation %v\n", q)
	fmt.Fprintf(out, "   pitch %7.2f°  yaw %7.2f°  roll %7.2f°\n",
		pose.Degrees(e.Pitch), pose.Degrees(e.Yaw), pose.Degrees(e.Roll))
	for i, name := range pose.SliderNames() {
		fmt.Fprintf(out, "   %-14s %.4f\n", name, sliders[i])
	}
	return nil
}

func parseFloats(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("want %d comma-separated numbers, got %d", n, len(parts))
	}
	out := make([]float64, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
