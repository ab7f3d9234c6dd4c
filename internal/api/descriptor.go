package api

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

// FileName is the proto file the Inventory service is registered under.
const FileName = "inventory/v1/inventory.proto"

// inventoryFile describes the service for server reflection. Requests and responses are
// google.protobuf.Struct documents.
func inventoryFile() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:       proto.String(FileName),
		Package:    proto.String("inventory.v1"),
		Dependency: []string{"google/protobuf/struct.proto"},
		Syntax:     proto.String("proto3"),
		Options: &descriptorpb.FileOptions{
			GoPackage: proto.String("github.com/miradorstack/graviton-inventory/internal/api;api"),
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("Inventory"),
			Method: []*descriptorpb.MethodDescriptorProto{{
				Name:       proto.String("Detect"),
				InputType:  proto.String(".google.protobuf.Struct"),
				OutputType: proto.String(".google.protobuf.Struct"),
			}},
		}},
	}
}

// registerFile adds the Inventory descriptor to the global registry once.
func registerFile(files *protoregistry.Files) (protoreflect.FileDescriptor, error) {
	if fd, err := files.FindFileByPath(FileName); err == nil {
		return fd, nil
	}
	fd, err := protodesc.NewFile(inventoryFile(), files)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", FileName, err)
	}
	if err := files.RegisterFile(fd); err != nil {
		return nil, fmt.Errorf("register %s: %w", FileName, err)
	}
	return fd, nil
}

func init() {
	if _, err := registerFile(protoregistry.GlobalFiles); err != nil {
		panic(err)
	}
}
