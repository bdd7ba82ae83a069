package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"image"
	_ "image/png"
	"math"
	"os"
	"strings"

	"github.com/faiface/mainthread"
	"github.com/go-gl/gl/v3.3-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"

	"github.com/memmaker/chunkforge/engine/store"
	"github.com/memmaker/chunkforge/engine/util"
	"github.com/memmaker/chunkforge/engine/voxel"
	"github.com/memmaker/chunkforge/world"
)

var (
	//go:embed shader/chunk.vert
	chunkVertexShaderSource string

	//go:embed shader/chunk.frag
	chunkFragmentShaderSource string
)

// chunkBuffers is the GL side of one meshed chunk: both packed streams plus
// one index buffer per pass.
type chunkBuffers struct {
	vao, vbo, uvbo uint32

	opaqueEBO      uint32
	transparentEBO uint32

	opaqueCount      int32
	transparentCount int32

	model mgl32.Mat4
}

type viewer struct {
	cfg     Config
	manager *world.Manager
	window  *glfw.Window

	program    uint32
	atlas      uint32
	cameraLoc  int32
	modelLoc   int32
	alphaLoc   int32
	projection mgl32.Mat4

	// The tick goroutine fills pending from the mesh callback and the main
	// thread consumes it inside frame. The two never run at the same time,
	// so neither map needs a lock.
	buffers map[voxel.Int3]*chunkBuffers
	pending map[voxel.Int3]*voxel.MeshData

	eye              mgl32.Vec3
	front, right, up mgl32.Vec3
	yaw, pitch       float64
	lastX, lastY     float64
	firstMouse       bool

	clicks    []glfw.MouseButton
	placeID   voxel.BlockID
	wireframe bool
	remeshAll bool
	quit      bool

	lastFrame float64
	ticks     uint64
}

func runView(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	configPath := fs.String("config", "", "config file")
	inPath := fs.String("in", "", "construction file to view instead of generated terrain")
	storePath := fs.String("store", "", "chunk store directory to load from, overrides the config")
	fs.Parse(args)

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *storePath != "" {
		cfg.Store.Path = *storePath
	}

	var runErr error
	mainthread.Run(func() {
		runErr = viewerMain(ctx, cfg, *inPath, *storePath)
	})
	return runErr
}

func viewerMain(ctx context.Context, cfg Config, inPath, storePath string) error {
	scheduler, err := newScheduler(cfg, nil)
	if err != nil {
		return err
	}
	defer shutdownScheduler(scheduler)

	reg := world.DefaultRegistry()
	v := &viewer{
		cfg:        cfg,
		buffers:    make(map[voxel.Int3]*chunkBuffers),
		pending:    make(map[voxel.Int3]*voxel.MeshData),
		yaw:        -90,
		pitch:      -25,
		firstMouse: true,
	}

	opts := world.Options{
		ChunkSize: cfg.World.ChunkSize,
		Scheduler: scheduler,
		OnMesh: func(coord voxel.Int3, mesh *voxel.MeshData) {
			if old, ok := v.pending[coord]; ok {
				v.manager.Pool().ReleaseMesh(old)
			}
			v.pending[coord] = mesh
		},
	}

	var m *world.Manager
	if inPath != "" {
		m, err = world.ManagerFromConstruction(inPath, reg, opts)
	} else {
		var st *store.ChunkStore
		if storePath != "" {
			if st, err = store.Open(cfg.Store.Path); err != nil {
				return err
			}
			defer st.Close()
			opts.Store = st
		}
		opts.Registry = reg
		opts.Dimensions = cfg.worldDimensions()
		var biome world.Biome
		if biome, err = newBiome(cfg, reg); err != nil {
			return err
		}
		opts.Biome = biome
		if m, err = world.NewManager(opts); err == nil {
			if st != nil {
				err = m.LoadOrGenerate()
			} else {
				err = m.GenerateAll()
			}
		}
	}
	if err != nil {
		return err
	}
	v.manager = m
	if id, ok := reg.ByName("stone"); ok {
		v.placeID = id
	} else {
		v.placeID = firstOpaqueBlock(reg)
	}

	extent := m.Dimensions().Mul(m.Size()).ToVec3()
	v.eye = mgl32.Vec3{
		extent.X() * 0.5,
		extent.Y()*1.1 + 4,
		extent.Z()*1.4 + 4,
	}
	v.updateCameraVectors()

	if err := mainthread.CallErr(v.initGL); err != nil {
		return err
	}
	defer mainthread.Call(v.destroyGL)

	for !v.quit {
		if ctx.Err() != nil {
			break
		}
		m.Update()
		mainthread.Call(v.frame)
	}
	return nil
}

func firstOpaqueBlock(reg *voxel.AtlasRegistry) voxel.BlockID {
	for id := voxel.BlockID(1); int(id) < reg.Count(); id++ {
		if !reg.IsTransparent(id) {
			return id
		}
	}
	return voxel.Air
}

func (v *viewer) initGL() error {
	if err := glfw.Init(); err != nil {
		return errors.Wrap(err, "glfw init")
	}
	glfw.WindowHint(glfw.ContextVersionMajor, 3)
	glfw.WindowHint(glfw.ContextVersionMinor, 3)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.Resizable, glfw.False)

	width, height := v.cfg.Viewer.Width, v.cfg.Viewer.Height
	win, err := glfw.CreateWindow(width, height, "chunkforge", nil, nil)
	if err != nil {
		glfw.Terminate()
		return errors.Wrap(err, "create window")
	}
	win.MakeContextCurrent()
	if v.cfg.Viewer.VSync {
		glfw.SwapInterval(1)
	} else {
		glfw.SwapInterval(0)
	}

	if err := gl.Init(); err != nil {
		glfw.Terminate()
		return errors.Wrap(err, "gl init")
	}
	util.LogGlInfo(fmt.Sprintf("[GL] version %s", gl.GoStr(gl.GetString(gl.VERSION))))

	gl.DepthFunc(gl.LESS)
	gl.Enable(gl.DEPTH_TEST)
	gl.Enable(gl.CULL_FACE)
	gl.CullFace(gl.BACK)

	program, err := buildProgram(chunkVertexShaderSource, chunkFragmentShaderSource)
	if err != nil {
		glfw.Terminate()
		return err
	}
	v.program = program
	v.cameraLoc = gl.GetUniformLocation(program, gl.Str("camera\x00"))
	v.modelLoc = gl.GetUniformLocation(program, gl.Str("model\x00"))
	v.alphaLoc = gl.GetUniformLocation(program, gl.Str("alpha\x00"))

	extent := v.manager.Dimensions().Mul(v.manager.Size())
	far := float32(extent.X + extent.Y + extent.Z + 64)
	v.projection = mgl32.Perspective(mgl32.DegToRad(70), float32(width)/float32(height), 0.1, far)

	gl.UseProgram(program)
	projectionLoc := gl.GetUniformLocation(program, gl.Str("projection\x00"))
	gl.UniformMatrix4fv(projectionLoc, 1, false, &v.projection[0])
	lightPos := mgl32.Vec3{float32(extent.X) * 0.3, float32(extent.Y) * 2.5, float32(extent.Z) * 0.1}
	lightPosLoc := gl.GetUniformLocation(program, gl.Str("light_position\x00"))
	gl.Uniform3f(lightPosLoc, lightPos.X(), lightPos.Y(), lightPos.Z())
	lightColorLoc := gl.GetUniformLocation(program, gl.Str("light_color\x00"))
	gl.Uniform3f(lightColorLoc, 0.4, 0.4, 0.4)

	useAtlas := int32(0)
	if v.cfg.Viewer.Atlas != "" {
		atlas, tiles, err := loadAtlasTexture(v.cfg.Viewer.Atlas)
		if err != nil {
			glfw.Terminate()
			return err
		}
		v.atlas = atlas
		useAtlas = 1
		gl.Uniform1i(gl.GetUniformLocation(program, gl.Str("atlas\x00")), 0)
		gl.Uniform1i(gl.GetUniformLocation(program, gl.Str("atlas_tiles\x00")), tiles)
	}
	gl.Uniform1i(gl.GetUniformLocation(program, gl.Str("use_atlas\x00")), useAtlas)

	win.SetKeyCallback(v.onKey)
	win.SetCursorPosCallback(v.onCursor)
	win.SetMouseButtonCallback(v.onMouseButton)
	win.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)

	v.window = win
	v.lastFrame = glfw.GetTime()
	return nil
}

func (v *viewer) destroyGL() {
	for _, b := range v.buffers {
		b.destroy()
	}
	if v.atlas != 0 {
		gl.DeleteTextures(1, &v.atlas)
	}
	if v.program != 0 {
		gl.DeleteProgram(v.program)
	}
	glfw.Terminate()
}

// loadAtlasTexture uploads a horizontal strip of square tiles and leaves it
// bound on unit 0. A packed UV word's tile index selects the column.
func loadAtlasTexture(path string) (uint32, int32, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, errors.Wrap(err, "open atlas")
	}
	defer file.Close()
	img, _, err := image.Decode(file)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "decoding atlas %q", path)
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if h == 0 || w%h != 0 {
		return 0, 0, errors.Errorf("atlas %q is %dx%d, want a horizontal strip of square tiles", path, w, h)
	}
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)

	var tex uint32
	gl.GenTextures(1, &tex)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, tex)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA, int32(w), int32(h), 0, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(rgba.Pix))
	return tex, int32(w / h), nil
}

func compileShader(source string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)
	csources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
		infoLog := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(infoLog))
		gl.DeleteShader(shader)
		return 0, errors.Errorf("shader compile failed: %s", infoLog)
	}
	return shader, nil
}

func buildProgram(vertexSource, fragmentSource string) (uint32, error) {
	vert, err := compileShader(vertexSource, gl.VERTEX_SHADER)
	if err != nil {
		return 0, err
	}
	frag, err := compileShader(fragmentSource, gl.FRAGMENT_SHADER)
	if err != nil {
		gl.DeleteShader(vert)
		return 0, err
	}

	program := gl.CreateProgram()
	gl.AttachShader(program, vert)
	gl.AttachShader(program, frag)
	gl.LinkProgram(program)
	gl.DeleteShader(vert)
	gl.DeleteShader(frag)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)
		infoLog := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(infoLog))
		gl.DeleteProgram(program)
		return 0, errors.Errorf("program link failed: %s", infoLog)
	}
	return program, nil
}

// frame runs once per loop iteration on the main thread: input, buffer
// uploads and both draw passes.
func (v *viewer) frame() {
	now := glfw.GetTime()
	elapsed := now - v.lastFrame
	v.lastFrame = now

	v.handleInput(elapsed)
	if v.remeshAll {
		v.remeshAll = false
		v.manager.ForEach(func(c *world.Chunk) {
			v.manager.RequestRemesh(c.Coord())
		})
	}
	v.uploadPending()

	if v.wireframe {
		gl.PolygonMode(gl.FRONT_AND_BACK, gl.LINE)
	} else {
		gl.PolygonMode(gl.FRONT_AND_BACK, gl.FILL)
	}
	gl.ClearColor(0.55, 0.68, 0.9, 1)
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
	v.draw()

	v.ticks++
	if v.ticks%60 == 0 {
		v.window.SetTitle(fmt.Sprintf("chunkforge - FPS: %.0f, chunks: %d, pending: %d", 1.0/elapsed, len(v.buffers), len(v.pending)))
	}
	v.window.SwapBuffers()
	glfw.PollEvents()
	if v.window.ShouldClose() {
		v.quit = true
	}
}

func (v *viewer) handleInput(elapsed float64) {
	speed := float32(elapsed) * 12
	if v.window.GetKey(glfw.KeyLeftShift) == glfw.Press {
		speed *= 4
	}
	if v.window.GetKey(glfw.KeyW) == glfw.Press {
		v.eye = v.eye.Add(v.front.Mul(speed))
	}
	if v.window.GetKey(glfw.KeyS) == glfw.Press {
		v.eye = v.eye.Sub(v.front.Mul(speed))
	}
	if v.window.GetKey(glfw.KeyA) == glfw.Press {
		v.eye = v.eye.Sub(v.right.Mul(speed))
	}
	if v.window.GetKey(glfw.KeyD) == glfw.Press {
		v.eye = v.eye.Add(v.right.Mul(speed))
	}
	if v.window.GetKey(glfw.KeySpace) == glfw.Press {
		v.eye = v.eye.Add(mgl32.Vec3{0, speed, 0})
	}
	if v.window.GetKey(glfw.KeyLeftControl) == glfw.Press {
		v.eye = v.eye.Sub(mgl32.Vec3{0, speed, 0})
	}

	for _, button := range v.clicks {
		v.applyClick(button)
	}
	v.clicks = v.clicks[:0]
}

// applyClick digs or places along the view ray. Left removes the hit block,
// right fills the cell in front of it.
func (v *viewer) applyClick(button glfw.MouseButton) {
	end := v.eye.Add(v.front.Mul(96))
	hit := util.VoxelRaycast(v.eye, end, func(pos voxel.Int3) bool {
		id := v.manager.GetBlock(pos)
		return id != voxel.Air && id != voxel.Null
	})
	if !hit.Hit {
		return
	}
	switch button {
	case glfw.MouseButtonLeft:
		v.manager.SetBlock(hit.Position, voxel.Air)
	case glfw.MouseButtonRight:
		if v.placeID != voxel.Air && hit.Previous != hit.Position {
			v.manager.SetBlock(hit.Previous, v.placeID)
		}
	}
}

func (v *viewer) onKey(w *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
	if action != glfw.Press {
		return
	}
	switch key {
	case glfw.KeyEscape:
		w.SetShouldClose(true)
	case glfw.KeyR:
		v.remeshAll = true
	case glfw.KeyF:
		v.wireframe = !v.wireframe
	}
}

func (v *viewer) onCursor(_ *glfw.Window, xpos, ypos float64) {
	if v.firstMouse {
		v.lastX, v.lastY = xpos, ypos
		v.firstMouse = false
	}
	xoffset := (xpos - v.lastX) * 0.1
	yoffset := (v.lastY - ypos) * 0.1
	v.lastX, v.lastY = xpos, ypos

	v.yaw += xoffset
	v.pitch += yoffset
	if v.pitch > 89 {
		v.pitch = 89
	}
	if v.pitch < -89 {
		v.pitch = -89
	}
	v.updateCameraVectors()
}

func (v *viewer) onMouseButton(_ *glfw.Window, button glfw.MouseButton, action glfw.Action, _ glfw.ModifierKey) {
	if action == glfw.Press {
		v.clicks = append(v.clicks, button)
	}
}

func (v *viewer) updateCameraVectors() {
	front := mgl32.Vec3{
		float32(math.Cos(float64(mgl32.DegToRad(float32(v.yaw)))) * math.Cos(float64(mgl32.DegToRad(float32(v.pitch))))),
		float32(math.Sin(float64(mgl32.DegToRad(float32(v.pitch))))),
		float32(math.Sin(float64(mgl32.DegToRad(float32(v.yaw)))) * math.Cos(float64(mgl32.DegToRad(float32(v.pitch))))),
	}
	v.front = front.Normalize()
	v.right = v.front.Cross(mgl32.Vec3{0, 1, 0}).Normalize()
	v.up = v.right.Cross(v.front).Normalize()
}

// uploadPending moves finished meshes into GL buffers and hands the mesh
// memory back to the pool.
func (v *viewer) uploadPending() {
	for coord, mesh := range v.pending {
		delete(v.pending, coord)
		if old, ok := v.buffers[coord]; ok {
			old.destroy()
			delete(v.buffers, coord)
		}
		if mesh.Empty() {
			v.manager.Pool().ReleaseMesh(mesh)
			continue
		}
		v.buffers[coord] = uploadMesh(coord.Mul(v.manager.Size()), mesh)
		v.manager.Pool().ReleaseMesh(mesh)
	}
}

func uploadMesh(origin voxel.Int3, mesh *voxel.MeshData) *chunkBuffers {
	b := &chunkBuffers{
		opaqueCount:      int32(len(mesh.OpaqueIndices)),
		transparentCount: int32(len(mesh.TransparentIndices)),
		model:            mgl32.Translate3D(float32(origin.X), float32(origin.Y), float32(origin.Z)),
	}

	gl.GenVertexArrays(1, &b.vao)
	gl.BindVertexArray(b.vao)

	gl.GenBuffers(1, &b.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, b.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, 4*len(mesh.Vertices), gl.Ptr(mesh.Vertices), gl.STATIC_DRAW)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribIPointer(0, 1, gl.UNSIGNED_INT, 4, nil)

	gl.GenBuffers(1, &b.uvbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, b.uvbo)
	gl.BufferData(gl.ARRAY_BUFFER, 4*len(mesh.UVs), gl.Ptr(mesh.UVs), gl.STATIC_DRAW)
	gl.EnableVertexAttribArray(1)
	gl.VertexAttribIPointer(1, 1, gl.UNSIGNED_INT, 4, nil)

	if b.opaqueCount > 0 {
		gl.GenBuffers(1, &b.opaqueEBO)
		gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, b.opaqueEBO)
		gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, 4*len(mesh.OpaqueIndices), gl.Ptr(mesh.OpaqueIndices), gl.STATIC_DRAW)
	}
	if b.transparentCount > 0 {
		gl.GenBuffers(1, &b.transparentEBO)
		gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, b.transparentEBO)
		gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, 4*len(mesh.TransparentIndices), gl.Ptr(mesh.TransparentIndices), gl.STATIC_DRAW)
	}
	gl.BindVertexArray(0)
	return b
}

func (b *chunkBuffers) destroy() {
	gl.DeleteVertexArrays(1, &b.vao)
	gl.DeleteBuffers(1, &b.vbo)
	gl.DeleteBuffers(1, &b.uvbo)
	if b.opaqueEBO != 0 {
		gl.DeleteBuffers(1, &b.opaqueEBO)
	}
	if b.transparentEBO != 0 {
		gl.DeleteBuffers(1, &b.transparentEBO)
	}
}

// draw renders the opaque pass first, then the transparent pass with
// blending and read-only depth so water does not punch holes in terrain.
func (v *viewer) draw() {
	view := mgl32.LookAtV(v.eye, v.eye.Add(v.front), v.up)
	gl.UseProgram(v.program)
	gl.UniformMatrix4fv(v.cameraLoc, 1, false, &view[0])

	gl.Uniform1f(v.alphaLoc, 1)
	for _, b := range v.buffers {
		if b.opaqueCount == 0 {
			continue
		}
		gl.UniformMatrix4fv(v.modelLoc, 1, false, &b.model[0])
		gl.BindVertexArray(b.vao)
		gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, b.opaqueEBO)
		gl.DrawElements(gl.TRIANGLES, b.opaqueCount, gl.UNSIGNED_INT, nil)
	}

	gl.Enable(gl.BLEND)
	gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
	gl.DepthMask(false)
	gl.Disable(gl.CULL_FACE)
	gl.Uniform1f(v.alphaLoc, 0.55)
	for _, b := range v.buffers {
		if b.transparentCount == 0 {
			continue
		}
		gl.UniformMatrix4fv(v.modelLoc, 1, false, &b.model[0])
		gl.BindVertexArray(b.vao)
		gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, b.transparentEBO)
		gl.DrawElements(gl.TRIANGLES, b.transparentCount, gl.UNSIGNED_INT, nil)
	}
	gl.Enable(gl.CULL_FACE)
	gl.DepthMask(true)
	gl.Disable(gl.BLEND)
	gl.BindVertexArray(0)
}
