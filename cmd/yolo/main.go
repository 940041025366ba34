// Command yolo runs one detector over an image or a video file and writes the
// annotated result.
package main

import (
	"fmt"
	"os"

	"YoloDetServer/config"
	"YoloDetServer/engine"
	"YoloDetServer/logger"
	"YoloDetServer/profile"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

const winName = "Deep learning object detection in OpenCV"

func main() {
	app := &cli.App{
		Name:  "yolo",
		Usage: "detect objects with a darknet YOLO model",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "imgpath", Value: "bus.jpg", Usage: "image `PATH`"},
			&cli.IntFlag{Name: "net_type", Value: 0, Usage: "profile index 0..3 (yolov3, yolov4, yolo-fastest, yolobile)"},
			&cli.StringFlag{Name: "net", Usage: "profile `NAME`, overrides net_type"},
			&cli.StringFlag{Name: "video", Usage: "run over every frame of video `FILE` instead of an image"},
			&cli.StringFlag{Name: "out", Usage: "write the annotated result to `FILE`"},
			&cli.BoolFlag{Name: "show", Usage: "open a window with the result"},
			&cli.StringFlag{Name: "model-dir", Value: ".", Usage: "`DIR` holding the model files"},
			&cli.StringFlag{Name: "config", Usage: "take backend, target and detector options from `FILE`"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func selectProfile(c *cli.Context) (profile.ModelProfile, error) {
	if name := c.String("net"); name != "" {
		return profile.Lookup(name)
	}
	return profile.ByIndex(c.Int("net_type"))
}

func detectorOptions(c *cli.Context) ([]engine.Option, error) {
	opts := []engine.Option{engine.WithModelDir(c.String("model-dir"))}
	if path := c.String("config"); path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		opts = append(opts,
			engine.WithBackend(cfg.Backend),
			engine.WithTarget(cfg.Target),
			engine.WithLetterbox(cfg.Letterbox),
			engine.WithClassAware(cfg.ClassAware),
		)
		if !c.IsSet("model-dir") {
			opts = append(opts, engine.WithModelDir(cfg.ModelDir))
		}
	}
	return opts, nil
}

func run(c *cli.Context) error {
	if err := logger.InitDevelopment(); err != nil {
		return err
	}
	defer logger.Sync()

	p, err := selectProfile(c)
	if err != nil {
		return err
	}
	opts, err := detectorOptions(c)
	if err != nil {
		return err
	}
	logger.Log().Info("Net use", zap.String("netname", p.NetName))
	det, err := engine.NewDetector(p, append(opts, engine.WithLogger(logger.Log()))...)
	if err != nil {
		return err
	}
	defer det.Close()

	if v := c.String("video"); v != "" {
		return runVideo(det, v, c.String("out"), c.Bool("show"))
	}
	return runImage(det, c.String("imgpath"), c.String("out"), c.Bool("show"))
}

func runImage(det *engine.Detector, path, out string, show bool) error {
	img := gocv.IMRead(path, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		return fmt.Errorf("cannot read image %s", path)
	}

	dets, err := det.Detect(&img)
	if err != nil {
		return err
	}
	for _, d := range dets {
		logger.Log().Info("detected",
			zap.String("label", d.Label),
			zap.Float32("confidence", d.Conf),
			zap.Int("left", d.Left), zap.Int("top", d.Top),
			zap.Int("right", d.Right), zap.Int("bottom", d.Bottom))
	}
	if out != "" && !gocv.IMWrite(out, img) {
		return fmt.Errorf("cannot write %s", out)
	}
	if show {
		window := gocv.NewWindow(winName)
		defer window.Close()
		window.IMShow(img)
		window.WaitKey(0)
	}
	return nil
}

func runVideo(det *engine.Detector, path, out string, show bool) error {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return fmt.Errorf("cannot open video %s: %w", path, err)
	}
	defer capture.Close()

	var window *gocv.Window
	if show {
		window = gocv.NewWindow(winName)
		defer window.Close()
	}
	var writer *gocv.VideoWriter
	defer func() {
		if writer != nil {
			_ = writer.Close()
		}
	}()

	frame := gocv.NewMat()
	defer frame.Close()
	frames, boxes := 0, 0
	for capture.Read(&frame) {
		if frame.Empty() {
			continue
		}
		dets, err := det.Detect(&frame)
		if err != nil {
			return err
		}
		frames++
		boxes += len(dets)
		if out != "" {
			if writer == nil {
				fps := capture.Get(gocv.VideoCaptureFPS)
				if fps <= 0 {
					fps = 25
				}
				writer, err = gocv.VideoWriterFile(out, "MJPG", fps, frame.Cols(), frame.Rows(), true)
				if err != nil {
					return fmt.Errorf("cannot create %s: %w", out, err)
				}
			}
			if err := writer.Write(frame); err != nil {
				return err
			}
		}
		if window != nil {
			window.IMShow(frame)
			if window.WaitKey(1) == 27 {
				break
			}
		}
	}
	logger.Log().Info("video done", zap.Int("frames", frames), zap.Int("boxes", boxes))
	return nil
}
