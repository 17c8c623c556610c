package records

import (
	"io"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/gregorycollins/riegeli/pkg/codec"
	"github.com/gregorycollins/riegeli/pkg/decoder"
)

// RecordsMetadata describes the records of a file: an optional fully
// qualified record type name and the file descriptors defining it.
//
// Wire format: field 1 record_type_name (string), field 2 file_descriptor
// (repeated google.protobuf.FileDescriptorProto). Unknown fields are
// ignored.
type RecordsMetadata struct {
	RecordTypeName  string
	FileDescriptors []*descriptorpb.FileDescriptorProto
}

// ParseRecordsMetadata parses a serialized RecordsMetadata message.
func ParseRecordsMetadata(data []byte) (*RecordsMetadata, error) {
	m := &RecordsMetadata{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, codec.Errorf(codec.DataLoss, "invalid metadata message tag")
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			name, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, codec.Errorf(codec.DataLoss, "invalid metadata record type name")
			}
			m.RecordTypeName = string(name)
			data = data[n:]
		case num == 2 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, codec.Errorf(codec.DataLoss, "invalid metadata file descriptor")
			}
			fd := &descriptorpb.FileDescriptorProto{}
			if err := proto.Unmarshal(raw, fd); err != nil {
				return nil, codec.Errorf(codec.DataLoss, "invalid metadata file descriptor: %v", err)
			}
			m.FileDescriptors = append(m.FileDescriptors, fd)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, codec.Errorf(codec.DataLoss, "invalid metadata message field %d", num)
			}
			data = data[n:]
		}
	}
	return m, nil
}

// RecordTypeDescriptor resolves the record type name against the embedded
// file descriptors. Returns nil when the metadata names no type or carries
// no descriptors.
func (m *RecordsMetadata) RecordTypeDescriptor() (protoreflect.MessageDescriptor, error) {
	if m.RecordTypeName == "" || len(m.FileDescriptors) == 0 {
		return nil, nil
	}
	files, err := protodesc.NewFiles(&descriptorpb.FileDescriptorSet{File: m.FileDescriptors})
	if err != nil {
		return nil, codec.Errorf(codec.DataLoss, "invalid metadata file descriptors: %v", err)
	}
	desc, err := files.FindDescriptorByName(protoreflect.FullName(m.RecordTypeName))
	if err != nil {
		return nil, codec.Errorf(codec.DataLoss,
			"record type %q not found in metadata descriptors: %v", m.RecordTypeName, err)
	}
	msg, ok := desc.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, codec.Errorf(codec.DataLoss,
			"record type %q is not a message type", m.RecordTypeName)
	}
	return msg, nil
}

// ReadMetadata reads the file metadata. It must be called with the reader
// at the beginning of the file: it consumes the signature chunk, peeks the
// following chunk and, when that is a file-metadata chunk, consumes and
// parses it. A file without a metadata chunk yields empty metadata.
func (r *RecordReader) ReadMetadata() (*RecordsMetadata, error) {
	serialized, err := r.ReadSerializedMetadata()
	if err != nil {
		return nil, err
	}
	metadata, err := ParseRecordsMetadata(serialized)
	if err != nil {
		return nil, r.fail(RecoverableNo, err)
	}
	return metadata, nil
}

// ReadSerializedMetadata is ReadMetadata without the final parse, returning
// the raw serialized RecordsMetadata message (empty when the file has no
// metadata chunk).
func (r *RecordReader) ReadSerializedMetadata() ([]byte, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	if r.err != nil {
		if !r.tryRecovery() {
			return nil, r.err
		}
	}
	if r.chunkReader.Pos() != 0 {
		return nil, r.fail(RecoverableNo, codec.Errorf(codec.FailedPrecondition,
			"metadata must be read at the beginning of the file, reader at %d", r.chunkReader.Pos()))
	}

	r.chunkBegin = r.chunkReader.Pos()
	chunk, err := r.chunkReader.ReadChunk()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		r.fail(RecoverableChunkReader, err)
		if r.tryRecovery() {
			return nil, nil
		}
		return nil, r.err
	}
	if chunk.Header.ChunkType != codec.ChunkTypeFileSignature {
		return nil, r.fail(RecoverableNo, codec.Errorf(codec.DataLoss,
			"unexpected type of the first chunk: %s", chunk.Header.ChunkType))
	}

	r.chunkBegin = r.chunkReader.Pos()
	header, err := r.chunkReader.PullChunkHeader()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		r.fail(RecoverableChunkReader, err)
		if r.tryRecovery() {
			return nil, nil
		}
		return nil, r.err
	}
	if header.ChunkType != codec.ChunkTypeFileMetadata {
		// No file metadata chunk; assume empty metadata.
		return nil, nil
	}
	chunk, err = r.chunkReader.ReadChunk()
	if err != nil {
		r.fail(RecoverableChunkReader, err)
		if r.tryRecovery() {
			return nil, nil
		}
		return nil, r.err
	}
	serialized, err := decoder.DecodeMetadata(chunk)
	if err != nil {
		r.fail(RecoverableChunkDecoder, err)
		if r.tryRecovery() {
			return nil, nil
		}
		return nil, r.err
	}
	return serialized, nil
}
