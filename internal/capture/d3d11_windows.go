//go:build windows

package capture

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	ole "github.com/go-ole/go-ole"
	"golang.org/x/sys/windows"
)

var (
	d3d11DLL = windows.NewLazySystemDLL("d3d11.dll")

	procD3D11CreateDevice                    = d3d11DLL.NewProc("D3D11CreateDevice")
	procCreateDirect3D11DeviceFromDXGIDevice = d3d11DLL.NewProc("CreateDirect3D11DeviceFromDXGIDevice")
)

const (
	d3dDriverTypeHardware        = 1
	d3d11SDKVersion              = 7
	d3d11CreateDeviceBGRASupport = 0x20

	d3d11UsageDefault       = 0
	d3d11BindShaderResource = 0x8
	d3d11ResourceMiscShared = 0x2
	dxgiFormatB8G8R8A8      = 87

	d3d11DeviceCreateTexture2D  = 5   // ID3D11Device
	d3d11TextureGetDesc         = 10  // ID3D11Texture2D
	d3d11CtxCopyResource        = 47  // ID3D11DeviceContext
	d3d11CtxFlush               = 111 // ID3D11DeviceContext
	dxgiResourceGetSharedHandle = 8   // IDXGIResource
)

var (
	iidIDXGIDevice     = ole.NewGUID("{54EC77FA-1377-44E6-8C32-88FD5F44C84C}")
	iidIDXGIResource   = ole.NewGUID("{035F3AB4-482E-4E50-B41F-8A7F8BD8960B}")
	iidID3D11Texture2D = ole.NewGUID("{6F15AAF2-D208-4E89-9AB4-489535D34F9C}")
)

// d3d11Texture2DDesc matches D3D11_TEXTURE2D_DESC.
type d3d11Texture2DDesc struct {
	Width          uint32
	Height         uint32
	MipLevels      uint32
	ArraySize      uint32
	Format         uint32
	SampleCount    uint32
	SampleQuality  uint32
	Usage          uint32
	BindFlags      uint32
	CPUAccessFlags uint32
	MiscFlags      uint32
}

// d3dDevice is a hardware ID3D11Device with its immediate context.
type d3dDevice struct {
	device  uintptr
	context uintptr
}

func newD3DDevice() (*d3dDevice, error) {
	if err := procD3D11CreateDevice.Find(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceCreation, err)
	}

	var device, context uintptr
	var level uint32
	hr, _, _ := procD3D11CreateDevice.Call(
		0, // default adapter
		d3dDriverTypeHardware,
		0,
		d3d11CreateDeviceBGRASupport,
		0, 0, // default feature levels
		d3d11SDKVersion,
		uintptr(unsafe.Pointer(&device)),
		uintptr(unsafe.Pointer(&level)),
		uintptr(unsafe.Pointer(&context)),
	)
	if int32(hr) < 0 {
		return nil, fmt.Errorf("%w: D3D11CreateDevice HRESULT 0x%08X", ErrDeviceCreation, uint32(hr))
	}
	return &d3dDevice{device: device, context: context}, nil
}

// winrtDevice wraps the device as a WinRT IDirect3DDevice for the frame pool.
func (d *d3dDevice) winrtDevice() (uintptr, error) {
	dxgiDevice, err := queryInterface(d.device, iidIDXGIDevice)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDeviceCreation, err)
	}
	defer comRelease(dxgiDevice)

	var inspectable uintptr
	hr, _, _ := procCreateDirect3D11DeviceFromDXGIDevice.Call(dxgiDevice, uintptr(unsafe.Pointer(&inspectable)))
	if int32(hr) < 0 {
		return 0, fmt.Errorf("%w: CreateDirect3D11DeviceFromDXGIDevice HRESULT 0x%08X", ErrDeviceCreation, uint32(hr))
	}
	return inspectable, nil
}

func (d *d3dDevice) CreateSharedTexture(size Size) (SharedTexture, error) {
	desc := d3d11Texture2DDesc{
		Width:       size.Width,
		Height:      size.Height,
		MipLevels:   1,
		ArraySize:   1,
		Format:      dxgiFormatB8G8R8A8,
		SampleCount: 1,
		Usage:       d3d11UsageDefault,
		BindFlags:   d3d11BindShaderResource,
		MiscFlags:   d3d11ResourceMiscShared,
	}

	var tex uintptr
	if _, err := comCall(d.device, d3d11DeviceCreateTexture2D,
		uintptr(unsafe.Pointer(&desc)),
		0,
		uintptr(unsafe.Pointer(&tex)),
	); err != nil {
		return nil, fmt.Errorf("CreateTexture2D %s: %w", size, err)
	}

	resource, err := queryInterface(tex, iidIDXGIResource)
	if err != nil {
		comRelease(tex)
		return nil, err
	}
	defer comRelease(resource)

	var handle uintptr
	if _, err := comCall(resource, dxgiResourceGetSharedHandle, uintptr(unsafe.Pointer(&handle))); err != nil {
		comRelease(tex)
		return nil, fmt.Errorf("GetSharedHandle: %w", err)
	}

	t := &d3dTexture{ptr: tex, size: size, handle: uint64(handle)}
	t.refs.Store(1)
	return t, nil
}

func (d *d3dDevice) CopyResource(dst, src Texture) error {
	dt, ok := dst.(*d3dTexture)
	if !ok {
		return fmt.Errorf("copy destination %T is not a device texture", dst)
	}
	st, ok := src.(*d3dTexture)
	if !ok {
		return fmt.Errorf("copy source %T is not a device texture", src)
	}
	comCallVoid(d.context, d3d11CtxCopyResource, dt.ptr, st.ptr)
	return nil
}

func (d *d3dDevice) Flush() {
	comCallVoid(d.context, d3d11CtxFlush)
}

func (d *d3dDevice) release() {
	comRelease(d.context)
	comRelease(d.device)
	d.context, d.device = 0, 0
}

// d3dTexture is an ID3D11Texture2D reference. refs tracks only the
// references this process handed out through AddRef/Release.
type d3dTexture struct {
	ptr    uintptr
	size   Size
	handle uint64
	refs   atomic.Int32
}

// wrapTexture adopts an existing ID3D11Texture2D reference.
func wrapTexture(ptr uintptr) *d3dTexture {
	var desc d3d11Texture2DDesc
	comCallVoid(ptr, d3d11TextureGetDesc, uintptr(unsafe.Pointer(&desc)))
	t := &d3dTexture{ptr: ptr, size: Size{Width: desc.Width, Height: desc.Height}}
	t.refs.Store(1)
	return t
}

func (t *d3dTexture) AddRef() {
	t.refs.Add(1)
	comAddRef(t.ptr)
}

func (t *d3dTexture) Release() {
	if t.refs.Add(-1) < 0 {
		return
	}
	comRelease(t.ptr)
}

func (t *d3dTexture) Size() Size     { return t.size }
func (t *d3dTexture) Handle() uint64 { return t.handle }
