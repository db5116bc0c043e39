// Stress run of the broad-phase: several maps with moving grids and bodies.
package main

import (
	"context"
	"flag"
	"math/rand"
	"os"
	"time"

	"github.com/ByteArena/broadphase"
	"github.com/charmbracelet/log"
	"github.com/mlange-42/ark/ecs"
)

type mover struct {
	body     *broadphase.Body
	velocity broadphase.Vec2
	spin     float64
}

func main() {
	maps := flag.Int("maps", 4, "number of maps")
	bodies := flag.Int("bodies", 500, "dynamic bodies per map")
	grids := flag.Int("grids", 2, "moving grids per map")
	steps := flag.Int("steps", 120, "steps to run")
	workers := flag.Int("workers", 4, "pair finder goroutines")
	seed := flag.Int64("seed", 42, "random seed")
	level := flag.String("log-level", "info", "log level")
	debug := flag.Bool("debug", false, "panic on invariant violations")
	flag.Parse()

	lvl, err := log.ParseLevel(*level)
	if err != nil {
		log.Fatal("bad log level", "level", *level, "err", err)
	}
	logger := broadphase.NewLogger(os.Stderr, lvl)

	store := broadphase.NewEntityStore()
	gridStore, err := broadphase.NewGridStore(broadphase.MakeGridStoreDef(), store)
	if err != nil {
		logger.Fatal("grid store", "err", err)
	}
	contacts := broadphase.NewContactSet(logger)

	def := broadphase.MakeWorldDef()
	def.Settings.Workers = *workers
	def.Settings.Debug = *debug
	def.Logger = logger
	def.Transforms = store
	def.Grids = gridStore
	def.Contacts = contacts

	world, err := broadphase.NewWorld(def)
	if err != nil {
		logger.Fatal("world", "err", err)
	}

	rng := rand.New(rand.NewSource(*seed))
	var movers []mover

	for m := 0; m < *maps; m++ {
		mapEntity, err := store.NewEntity(ecs.Entity{}, broadphase.MakeTransform())
		if err != nil {
			logger.Fatal("map entity", "err", err)
		}
		if _, err := world.CreateMap(mapEntity); err != nil {
			logger.Fatal("create map", "err", err)
		}

		for g := 0; g < *grids; g++ {
			xf := broadphase.MakeTransformFromAngle(broadphase.Vec2{float64(g) * 40.0, -20.0}, 0.0)
			gridEntity, err := store.NewEntity(mapEntity, xf)
			if err != nil {
				logger.Fatal("grid entity", "err", err)
			}
			if _, err := world.CreateGrid(gridEntity); err != nil {
				logger.Fatal("create grid", "err", err)
			}

			bodyDef := broadphase.MakeBodyDef()
			bodyDef.Type = broadphase.KinematicBody
			body, err := world.CreateBody(gridEntity, bodyDef)
			if err != nil {
				logger.Fatal("grid body", "err", err)
			}
			if err := gridStore.AddGrid(mapEntity, body); err != nil {
				logger.Fatal("add grid", "err", err)
			}
			for x := 0; x < 32; x++ {
				for y := 0; y < 4; y++ {
					if _, err := gridStore.SetTile(gridEntity, x, y); err != nil {
						logger.Fatal("set tile", "err", err)
					}
				}
			}

			movers = append(movers, mover{
				body:     body,
				velocity: broadphase.Vec2{0.0, 0.25},
				spin:     0.002,
			})
		}

		for b := 0; b < *bodies; b++ {
			position := broadphase.Vec2{rng.Float64()*100.0 - 10.0, rng.Float64() * 60.0}
			entity, err := store.NewEntity(mapEntity, broadphase.MakeTransformFromAngle(position, 0.0))
			if err != nil {
				logger.Fatal("body entity", "err", err)
			}
			bodyDef := broadphase.MakeBodyDef()
			bodyDef.Type = broadphase.DynamicBody
			body, err := world.CreateBody(entity, bodyDef)
			if err != nil {
				logger.Fatal("create body", "err", err)
			}

			var shape broadphase.Shape
			if b%2 == 0 {
				shape = broadphase.NewCircleShape(broadphase.Vec2{}, 0.25+rng.Float64()*0.5)
			} else {
				shape = broadphase.NewBoxShape(0.25+rng.Float64()*0.5, 0.25+rng.Float64()*0.5)
			}
			if _, err := body.CreateFixture(broadphase.MakeFixtureDef(shape)); err != nil {
				logger.Fatal("create fixture", "err", err)
			}

			movers = append(movers, mover{
				body:     body,
				velocity: broadphase.Vec2{rng.Float64() - 0.5, -rng.Float64() * 0.5},
				spin:     rng.Float64()*0.1 - 0.05,
			})
		}
	}

	engine := world.NewDistanceEngine()
	ctx := context.Background()

	var findTime, collideTime time.Duration
	start := time.Now()

	for step := 0; step < *steps; step++ {
		for _, m := range movers {
			entity := m.body.GetEntity()
			xf, _ := store.GetLocalTransform(entity)
			xf.Set(xf.P.Add(m.velocity), xf.Q.GetAngle()+m.spin)
			if err := store.SetLocalTransform(entity, xf); err != nil {
				logger.Fatal("move", "err", err)
			}
			world.SynchronizeBody(m.body)
		}

		t0 := time.Now()
		if err := world.FindNewContactsParallel(ctx); err != nil {
			logger.Fatal("find contacts", "err", err)
		}
		t1 := time.Now()
		contacts.Collide(engine, world)
		t2 := time.Now()

		findTime += t1.Sub(t0)
		collideTime += t2.Sub(t1)

		logger.Debug("step", "step", step, "contacts", contacts.Len())
	}

	touching := 0
	for _, c := range contacts.Contacts() {
		if c.IsTouching() {
			touching++
		}
	}

	n := time.Duration(max(*steps, 1))
	logger.Info("done",
		"maps", *maps,
		"bodies", world.GetBodyCount(),
		"steps", *steps,
		"contacts", contacts.Len(),
		"touching", touching,
		"find", (findTime / n).Round(time.Microsecond),
		"collide", (collideTime / n).Round(time.Microsecond),
		"total", time.Since(start).Round(time.Millisecond),
		"gjkCalls", engine.Stats.Calls,
		"gjkMaxIters", engine.Stats.MaxIters,
	)
}
