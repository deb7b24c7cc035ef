// Copyright (C) 2017 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmds

import "github.com/gfxtrace/gfxtrace/core/data/chunk"

// The chunk kinds. The values are part of the trace format.
const (
	KindDriverInit chunk.Kind = iota + 1
	KindInitialContents
	KindCaptureBegin
	KindCaptureEnd
	KindIndirectArguments
)

const (
	KindCreateBuffer chunk.Kind = iota + 0x100
	KindCreateTexture
	KindCreateRootSignature
	KindCreatePipeline
	KindCreateCommandSignature
	KindCreateQueue
	KindCreateAllocator
	KindCreateCommandList
	KindCreateFence
	KindCreateDescriptorHeap
)

const (
	KindListReset chunk.Kind = iota + 0x200
	KindListClose
	KindSetPipeline
	KindSetRootSignature
	KindSetRootConstants
	KindSetRootView
	KindSetRootTable
	KindSetDescriptorHeaps
	KindSetVertexBuffers
	KindSetIndexBuffer
	KindSetTopology
	KindSetViewports
	KindSetScissors
	KindSetRenderTargets
	KindResourceBarrier
	KindDraw
	KindDrawIndexed
	KindDispatch
	KindCopyBuffer
	KindClearRenderTarget
	KindClearDepthStencil
	KindExecuteIndirect
	KindPushMarker
	KindPopMarker
	KindSetMarker
)

const (
	KindExecuteCommandLists chunk.Kind = iota + 0x300
	KindSignal
	KindWait
	KindPresent
)

func init() {
	register(KindDriverInit, "DriverInit", System, func() Cmd { return &DriverInit{} })
	register(KindInitialContents, "InitialContents", System, func() Cmd { return &InitialContents{} })
	register(KindCaptureBegin, "CaptureBegin", System, func() Cmd { return &CaptureBegin{} })
	register(KindCaptureEnd, "CaptureEnd", System, func() Cmd { return &CaptureEnd{} })
	register(KindIndirectArguments, "IndirectArguments", System, func() Cmd { return &IndirectArguments{} })

	register(KindCreateBuffer, "CreateBuffer", Create, func() Cmd { return &CreateBuffer{} })
	register(KindCreateTexture, "CreateTexture", Create, func() Cmd { return &CreateTexture{} })
	register(KindCreateRootSignature, "CreateRootSignature", Create, func() Cmd { return &CreateRootSignature{} })
	register(KindCreatePipeline, "CreatePipeline", Create, func() Cmd { return &CreatePipeline{} })
	register(KindCreateCommandSignature, "CreateCommandSignature", Create, func() Cmd { return &CreateCommandSignature{} })
	register(KindCreateQueue, "CreateQueue", Create, func() Cmd { return &CreateQueue{} })
	register(KindCreateAllocator, "CreateAllocator", Create, func() Cmd { return &CreateAllocator{} })
	register(KindCreateCommandList, "CreateCommandList", Create, func() Cmd { return &CreateCommandList{} })
	register(KindCreateFence, "CreateFence", Create, func() Cmd { return &CreateFence{} })
	register(KindCreateDescriptorHeap, "CreateDescriptorHeap", Create, func() Cmd { return &CreateDescriptorHeap{} })

	register(KindListReset, "ListReset", List, func() Cmd { return &ListReset{} })
	register(KindListClose, "ListClose", List, func() Cmd { return &ListClose{} })
	register(KindSetPipeline, "SetPipeline", List, func() Cmd { return &SetPipeline{} })
	register(KindSetRootSignature, "SetRootSignature", List, func() Cmd { return &SetRootSignature{} })
	register(KindSetRootConstants, "SetRootConstants", List, func() Cmd { return &SetRootConstants{} })
	register(KindSetRootView, "SetRootView", List, func() Cmd { return &SetRootView{} })
	register(KindSetRootTable, "SetRootTable", List, func() Cmd { return &SetRootTable{} })
	register(KindSetDescriptorHeaps, "SetDescriptorHeaps", List, func() Cmd { return &SetDescriptorHeaps{} })
	register(KindSetVertexBuffers, "SetVertexBuffers", List, func() Cmd { return &SetVertexBuffers{} })
	register(KindSetIndexBuffer, "SetIndexBuffer", List, func() Cmd { return &SetIndexBuffer{} })
	register(KindSetTopology, "SetTopology", List, func() Cmd { return &SetTopology{} })
	register(KindSetViewports, "SetViewports", List, func() Cmd { return &SetViewports{} })
	register(KindSetScissors, "SetScissors", List, func() Cmd { return &SetScissors{} })
	register(KindSetRenderTargets, "SetRenderTargets", List, func() Cmd { return &SetRenderTargets{} })
	register(KindResourceBarrier, "ResourceBarrier", List, func() Cmd { return &ResourceBarrier{} })
	register(KindDraw, "Draw", List, func() Cmd { return &Draw{} })
	register(KindDrawIndexed, "DrawIndexed", List, func() Cmd { return &DrawIndexed{} })
	register(KindDispatch, "Dispatch", List, func() Cmd { return &Dispatch{} })
	register(KindCopyBuffer, "CopyBuffer", List, func() Cmd { return &CopyBuffer{} })
	register(KindClearRenderTarget, "ClearRenderTarget", List, func() Cmd { return &ClearRenderTarget{} })
	register(KindClearDepthStencil, "ClearDepthStencil", List, func() Cmd { return &ClearDepthStencil{} })
	register(KindExecuteIndirect, "ExecuteIndirect", List, func() Cmd { return &ExecuteIndirect{} })
	register(KindPushMarker, "PushMarker", List, func() Cmd { return &PushMarker{} })
	register(KindPopMarker, "PopMarker", List, func() Cmd { return &PopMarker{} })
	register(KindSetMarker, "SetMarker", List, func() Cmd { return &SetMarker{} })

	register(KindExecuteCommandLists, "ExecuteCommandLists", Queue, func() Cmd { return &ExecuteCommandLists{} })
	register(KindSignal, "Signal", Queue, func() Cmd { return &Signal{} })
	register(KindWait, "Wait", Queue, func() Cmd { return &Wait{} })
	register(KindPresent, "Present", Queue, func() Cmd { return &Present{} })
}
